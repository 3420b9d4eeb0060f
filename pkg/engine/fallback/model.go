package fallback

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/goccy/go-yaml"
	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// ModelMetaFile is the path of the metadata document inside a model package.
const ModelMetaFile = "0/model.json"

// Metadata describes the tensors of a model. Tensors are ordered by key,
// numerically when the keys are numbers.
type Metadata struct {
	Inputs  map[string]TensorInfo `yaml:"Inputs"`
	Outputs map[string]TensorInfo `yaml:"Outputs"`
}

type TensorInfo struct {
	Name     string        `yaml:"name,omitempty"`
	DType    string        `yaml:"dtype"`
	Format   string        `yaml:"format"`
	Shape    []int32       `yaml:"shape"`
	Quantize *QuantizeInfo `yaml:"quantize,omitempty"`
}

// QuantizeInfo overrides the data type of a tensor with a quantized one.
type QuantizeInfo struct {
	QType     string  `yaml:"qtype"`
	Scale     float32 `yaml:"scale"`
	ZeroPoint int32   `yaml:"zero_point"`
}

// ParseMetadata parses a JSON (or YAML) metadata document.
func ParseMetadata(data []byte) (*Metadata, error) {
	md := &Metadata{}
	if err := yaml.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("parsing model metadata: %w", err)
	}
	if md.Inputs == nil || md.Outputs == nil {
		return nil, fmt.Errorf("missing model metadata: model must declare Inputs and Outputs")
	}
	return md, nil
}

func checkPackage(model []byte) error {
	if _, err := zip.NewReader(bytes.NewReader(model), int64(len(model))); err != nil {
		return fmt.Errorf("invalid model package: %w", err)
	}
	return nil
}

// ReadModelMetadata extracts the metadata embedded in a model package.
func ReadModelMetadata(model []byte) (*Metadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(model), int64(len(model)))
	if err != nil {
		return nil, fmt.Errorf("invalid model package: %w", err)
	}
	f, err := zr.Open(ModelMetaFile)
	if err != nil {
		return nil, fmt.Errorf("missing model metadata %q: %w", ModelMetaFile, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading model metadata: %w", err)
	}
	return ParseMetadata(data)
}

// EncodeModel builds a model package holding md.
func EncodeModel(md *Metadata) ([]byte, error) {
	meta, err := yaml.MarshalWithOptions(md, yaml.JSON())
	if err != nil {
		return nil, fmt.Errorf("encoding model metadata: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(ModelMetaFile)
	if err != nil {
		return nil, fmt.Errorf("creating %q: %w", ModelMetaFile, err)
	}
	if _, err := w.Write(meta); err != nil {
		return nil, fmt.Errorf("writing %q: %w", ModelMetaFile, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing model package: %w", err)
	}
	return buf.Bytes(), nil
}

func (ti TensorInfo) newTensor() (*engine.Tensor, error) {
	dtypeName := ti.DType
	var opts []engine.TensorOption
	if q := ti.Quantize; q != nil {
		dtypeName = q.QType
		scale := q.Scale
		if scale == 0 {
			scale = 1
		}
		opts = append(opts, engine.WithQuantization(engine.Quantization{Scale: scale, ZeroPoint: q.ZeroPoint}))
	}
	dtype, err := types.ParseDataType(dtypeName)
	if err != nil {
		return nil, err
	}
	return engine.NewTensor(ti.Name, dtype, types.ParseLayout(ti.Format), types.NewShape(ti.Shape...), opts...)
}

func buildTensors(infos map[string]TensorInfo) ([]*engine.Tensor, error) {
	keys := make([]string, 0, len(infos))
	for k := range infos {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	tensors := make([]*engine.Tensor, 0, len(keys))
	for _, k := range keys {
		t, err := infos[k].newTensor()
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", k, err)
		}
		tensors = append(tensors, t)
	}
	return tensors, nil
}

func compareKeys(a, b string) int {
	ia, errA := strconv.Atoi(a)
	ib, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ia - ib
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
