package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"k8s.io/examples/AI/npubridge/pkg/config"
	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/engine/fallback"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/postprocess"
	"k8s.io/examples/AI/npubridge/pkg/preprocess"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

func newInfoCommand(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the inputs and outputs of a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := opt.config(cmd)
			if err != nil {
				return err
			}
			net, err := loadNetwork(ctx, cfg)
			if err != nil {
				return err
			}
			defer net.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Network : %s\n", cfg.Model)
			fmt.Fprintf(out, "Engine  : %s\n\n", net.Version())
			fmt.Fprintln(out, tensorTable("Inputs", net.Inputs()))
			fmt.Fprintln(out, tensorTable("Outputs", net.Outputs()))
			return nil
		},
	}
}

func tensorTable(title string, tensors *engine.Tensors) string {
	t := newPlainTable(true)
	t.Headers(title, "Name", "Type", "Layout", "Shape", "Size", "Quantization")
	for i, tensor := range tensors.All() {
		quant := "-"
		if q := tensor.Quantization(); q != nil {
			quant = fmt.Sprintf("scale=%g zero_point=%d", q.Scale, q.ZeroPoint)
		}
		t.Row(
			strconv.Itoa(i),
			tensor.Name(),
			tensor.DataType().String(),
			tensor.Layout().String(),
			tensor.Shape().String(),
			humanize.Bytes(uint64(tensor.Size())),
			quant,
		)
	}
	return t.String()
}

func newPredictCommand(opt *options) *cobra.Command {
	var outputDir string
	var show int

	cmd := &cobra.Command{
		Use:   "predict [input.bin...]",
		Short: "Run a model on raw tensor files, one per input",
		Long: `Run a model on raw tensor files.

Each file holds the raw bytes of one input, in the data type and shape of
that input. Without files the inputs keep their current content.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := opt.config(cmd)
			if err != nil {
				return err
			}
			net, err := loadNetwork(ctx, cfg)
			if err != nil {
				return err
			}
			defer net.Close()

			if len(args) > 0 {
				if err := assignRawInputs(net.Inputs(), args); err != nil {
					return err
				}
			}
			outputs, err := engine.Predict(ctx, net)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, tensor := range outputs.All() {
				view, err := tensor.Export()
				if err != nil {
					return err
				}
				values, err := view.Data()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "output %d %s %s: %s\n", i, tensor.Name(), view.Shape(), formatValues(values, show))

				if outputDir != "" {
					data, err := tensor.Bytes()
					if err != nil {
						return err
					}
					path := filepath.Join(outputDir, fmt.Sprintf("output_%d.bin", i))
					if err := os.WriteFile(path, data, 0644); err != nil {
						return fmt.Errorf("writing output %d: %w", i, err)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write the raw output tensors to")
	cmd.Flags().IntVar(&show, "show", 8, "number of values to print per output")
	return cmd
}

// assignRawInputs copies one raw file into each network input. Every file is
// read and size checked before any input is written.
func assignRawInputs(inputs *engine.Tensors, paths []string) error {
	if len(paths) != inputs.Len() {
		return errdefs.New(errdefs.InputCountMismatch, "invalid number of inputs: expected %d inputs, got %d inputs", inputs.Len(), len(paths))
	}
	raw := make([][]byte, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading input %d: %w", i, err)
		}
		tensor, err := inputs.At(i)
		if err != nil {
			return err
		}
		if len(data) != tensor.Size() {
			return errdefs.New(errdefs.SizeMismatch, "input %d (%s): expected %d bytes of %s, got %d bytes from %s",
				i, tensor.Name(), tensor.Size(), tensor.DataType(), len(data), path)
		}
		raw[i] = data
	}
	for i, tensor := range inputs.All() {
		if err := tensor.AssignBytes(raw[i]); err != nil {
			return fmt.Errorf("assigning input %d: %w", i, err)
		}
	}
	return nil
}

func formatValues(values []float32, n int) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range values {
		if i == n {
			fmt.Fprintf(&sb, " ... (%d values)", len(values))
			break
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%g", v)
	}
	sb.WriteString("]")
	return sb.String()
}

// timings of the stages of a single inference.
type timings struct {
	pre, inf, post time.Duration
}

func (t timings) String() string {
	total := t.pre + t.inf + t.post
	return fmt.Sprintf("%.3f ms (pre: %.3f us, inf: %.3f us, post: %.3f us)",
		ms(total), us(t.pre), us(t.inf), us(t.post))
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
func us(d time.Duration) float64 { return float64(d) / float64(time.Microsecond) }

// runImage places the image into input 0 and runs the network.
func runImage(cmd *cobra.Command, cn *configuredNetwork, image string) (types.Rect, timings, error) {
	ctx := cmd.Context()
	var tm timings

	p := preprocess.NewWithEngine(&preprocess.ImageEngine{KeepAspectRatio: cn.Preprocess.KeepAspectRatio})
	start := time.Now()
	rect, err := p.AssignFile(ctx, cn.net.Inputs(), image, 0)
	if err != nil {
		return types.Rect{}, tm, err
	}
	tm.pre = time.Since(start)

	start = time.Now()
	if _, err := engine.Predict(ctx, cn.net); err != nil {
		return types.Rect{}, tm, err
	}
	tm.inf = time.Since(start)
	return rect, tm, nil
}

func newClassifyCommand(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cn, err := opt.configuredNetwork(cmd)
			if err != nil {
				return err
			}
			defer cn.net.Close()

			_, tm, err := runImage(cmd, cn, args[0])
			if err != nil {
				return err
			}

			start := time.Now()
			result := postprocess.NewClassifier(cn.Classifier.TopCount).Process(cn.net.Outputs())
			tm.post = time.Since(start)
			if !result.Success {
				return fmt.Errorf("classification failed")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nNetwork        : %s\n", cn.Model)
			fmt.Fprintf(out, "Input          : %s\n", args[0])
			fmt.Fprintf(out, "Detection time : %s\n\n", tm)

			t := newPlainTable(true, lipglossRight, lipglossRight, lipglossLeft)
			t.Headers("Class", "Confidence", "Description")
			for _, item := range result.Items {
				t.Row(strconv.Itoa(item.ClassIndex), fmt.Sprintf("%.4f", item.Confidence), cn.label(item.ClassIndex))
			}
			fmt.Fprintln(out, t.String())
			return nil
		},
	}
}

func newDetectCommand(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <image>",
		Short: "Detect objects in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cn, err := opt.configuredNetwork(cmd)
			if err != nil {
				return err
			}
			defer cn.net.Close()

			input, err := cn.net.Inputs().At(0)
			if err != nil {
				return err
			}
			size, err := spatialSize(input)
			if err != nil {
				return err
			}

			rect, tm, err := runImage(cmd, cn, args[0])
			if err != nil {
				return err
			}

			start := time.Now()
			detector := postprocess.NewDetector(&postprocess.YOLOv8Decoder{Input: size}, cn.Detector.Options())
			result := detector.Process(cn.net.Outputs(), rect)
			tm.post = time.Since(start)
			if !result.Success {
				return fmt.Errorf("detection failed")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nNetwork        : %s\n", cn.Model)
			fmt.Fprintf(out, "Input          : %s\n", args[0])
			fmt.Fprintf(out, "Detection time : %s\n\n", tm)

			t := newPlainTable(true, lipglossRight, lipglossRight, lipglossRight, lipglossLeft)
			t.Headers("#", "Score", "Class", "Position", "Size", "Description", "Landmarks")
			for i, item := range result.Items {
				bb := item.BoundingBox
				var landmarks []string
				for _, lm := range item.Landmarks {
					landmarks = append(landmarks, lm.String())
				}
				t.Row(
					strconv.Itoa(i),
					fmt.Sprintf("%.2f", item.Confidence),
					strconv.Itoa(item.ClassIndex),
					fmt.Sprintf("%d,%d", bb.Origin.X, bb.Origin.Y),
					fmt.Sprintf("%d,%d", bb.Size.X, bb.Size.Y),
					cn.label(item.ClassIndex),
					strings.Join(landmarks, " "),
				)
			}
			fmt.Fprintln(out, t.String())
			return nil
		},
	}
}

// spatialSize is the width and height of an image input tensor.
func spatialSize(t *engine.Tensor) (types.Dim2d, error) {
	dims := t.Shape().Dims()
	if len(dims) != 4 {
		return types.Dim2d{}, fmt.Errorf("input %q is not an image: shape %s", t.Name(), t.Shape())
	}
	if t.Layout() == types.LayoutNCHW {
		return types.Dim2d{X: dims[3], Y: dims[2]}, nil
	}
	return types.Dim2d{X: dims[2], Y: dims[1]}, nil
}

func newFetchCommand(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the model from the blobserver into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opt.config(cmd)
			if err != nil {
				return err
			}
			if cfg.Blobserver == "" {
				return fmt.Errorf("fetch requires --blobserver (or BLOBSERVER)")
			}
			path, err := fetchModel(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			stat, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("checking fetched model: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", path, humanize.Bytes(uint64(stat.Size())))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the engine version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "engine %s\n", fallback.Version)
		},
	}
}

// configuredNetwork is a loaded network together with the settings it was
// loaded with.
type configuredNetwork struct {
	*config.Config
	net    *fallback.Network
	labels []string
}

func (o *options) configuredNetwork(cmd *cobra.Command) (*configuredNetwork, error) {
	cfg, err := o.config(cmd)
	if err != nil {
		return nil, err
	}
	var labels []string
	if cfg.Labels != "" {
		if labels, err = loadLabels(cfg.Labels); err != nil {
			return nil, err
		}
	}
	net, err := loadNetwork(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	return &configuredNetwork{Config: cfg, net: net, labels: labels}, nil
}

func (c *configuredNetwork) label(i int) string {
	if i < 0 || i >= len(c.labels) {
		return ""
	}
	return c.labels[i]
}

// loadLabels reads class labels from a JSON document with a "labels" list,
// or from a text file with one label per line.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var info struct {
			Labels []string `yaml:"labels"`
		}
		if err := yaml.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("parsing labels %s: %w", path, err)
		}
		return info.Labels, nil
	}
	var labels []string
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		labels = append(labels, strings.TrimSpace(line))
	}
	return labels, nil
}
