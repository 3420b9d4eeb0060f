// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command npu loads models into an inference engine and runs them on
// images or raw tensors.
//
// Usage:
//
//	npu [flags] <command> [args]
//
// Commands:
//
//	info      - show the inputs and outputs of a model
//	predict   - run a model on raw tensor files
//	classify  - classify an image
//	detect    - detect objects in an image
//	fetch     - download a model from the blobserver into the cache
//	version   - show the engine version
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/examples/AI/npubridge/pkg/blobs"
	"k8s.io/examples/AI/npubridge/pkg/config"
	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/engine/fallback"
	"k8s.io/klog/v2"
)

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// options are the flags shared by every command.
type options struct {
	configPath string

	model      string
	meta       string
	labels     string
	blobserver string
	cacheDir   string
	topCount   int
}

func newRootCommand() *cobra.Command {
	opt := &options{}

	root := &cobra.Command{
		Use:           "npu",
		Short:         "Run models on the NPU inference engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	flags := root.PersistentFlags()
	flags.StringVar(&opt.configPath, "config", os.Getenv("NPU_CONFIG"), "path to a YAML config file")
	flags.StringVarP(&opt.model, "model", "m", "", "path to the model package, or its hash when --blobserver is set")
	flags.StringVar(&opt.meta, "meta", "", "path to a metadata file overriding the model metadata")
	flags.StringVar(&opt.labels, "labels", "", "path to class labels (text, one per line, or JSON with a labels list)")
	flags.StringVar(&opt.blobserver, "blobserver", "", "base url to blobserver")
	flags.StringVar(&opt.cacheDir, "cache-dir", "", "directory for models fetched from the blobserver")
	flags.IntVar(&opt.topCount, "top", 0, "number of classes to report")

	root.AddCommand(
		newInfoCommand(opt),
		newPredictCommand(opt),
		newClassifyCommand(opt),
		newDetectCommand(opt),
		newFetchCommand(opt),
		newVersionCommand(),
	)
	return root
}

// config resolves the settings of cmd: the config file and the environment,
// overridden by the flags set on the command line.
func (o *options) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	for name, dst := range map[string]*string{
		"model":      &cfg.Model,
		"meta":       &cfg.Meta,
		"labels":     &cfg.Labels,
		"blobserver": &cfg.Blobserver,
		"cache-dir":  &cfg.CacheDir,
	} {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			if err != nil {
				return nil, err
			}
			*dst = v
		}
	}
	if flags.Changed("top") {
		cfg.Classifier.TopCount = o.topCount
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fetchModel makes the model available locally and returns its path. Without
// a blobserver the model is already a local path.
func fetchModel(ctx context.Context, cfg *config.Config, showProgress bool) (string, error) {
	if cfg.Blobserver == "" {
		return cfg.Model, nil
	}
	log := klog.FromContext(ctx)

	blobserverURL, err := url.Parse(cfg.Blobserver)
	if err != nil {
		return "", fmt.Errorf("parsing blobserver url %q: %w", cfg.Blobserver, err)
	}
	reader := &blobs.ModelServer{BlobserverURL: blobserverURL}
	if showProgress {
		reader.Progress = func(total int64, description string) io.Writer {
			return progressbar.DefaultBytes(total, description)
		}
	}

	cacheDir, err := cfg.ExpandedCacheDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory %q: %w", cacheDir, err)
	}

	localPath := filepath.Join(cacheDir, cfg.Model)
	fetched, err := blobs.NewFetcher(reader).FetchIfMissing(ctx, blobs.BlobInfo{Hash: cfg.Model}, localPath)
	if err != nil {
		return "", fmt.Errorf("downloading model: %w", err)
	}
	if fetched {
		log.Info("model downloaded", "path", localPath)
	}
	return localPath, nil
}

// loadNetwork returns a network with the configured model loaded.
func loadNetwork(ctx context.Context, cfg *config.Config) (*fallback.Network, error) {
	modelPath, err := fetchModel(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	net := fallback.NewNetwork()
	if err := engine.LoadModelFile(ctx, net, modelPath, cfg.Meta); err != nil {
		return nil, err
	}
	return net, nil
}
