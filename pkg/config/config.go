// Package config holds the settings of the npu command.
//
// Settings are resolved in order: built-in defaults, the YAML file, the
// environment (MODEL, META, BLOBSERVER, CACHE_DIR), then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"k8s.io/examples/AI/npubridge/pkg/postprocess"
)

type Config struct {
	// Model is a path to a model package, or a blob hash when Blobserver is set.
	Model string `yaml:"model,omitempty"`
	// Meta is an optional metadata file overriding the metadata of the model.
	Meta string `yaml:"meta,omitempty"`
	// Labels is an optional file with one class label per line, or a JSON
	// document with a "labels" list.
	Labels string `yaml:"labels,omitempty"`

	Blobserver string `yaml:"blobserver,omitempty"`
	CacheDir   string `yaml:"cacheDir,omitempty"`

	Preprocess Preprocess `yaml:"preprocess"`
	Classifier Classifier `yaml:"classifier"`
	Detector   Detector   `yaml:"detector"`
}

type Preprocess struct {
	KeepAspectRatio bool `yaml:"keepAspectRatio"`
}

type Classifier struct {
	TopCount int `yaml:"topCount"`
}

type Detector struct {
	ScoreThreshold   float32 `yaml:"scoreThreshold"`
	MaxResults       int     `yaml:"maxResults"`
	SuppressOverlaps bool    `yaml:"suppressOverlaps"`
	IoUThreshold     float32 `yaml:"iouThreshold"`
	IoUWithMin       bool    `yaml:"iouWithMin"`
}

func (d Detector) Options() postprocess.DetectorOptions {
	return postprocess.DetectorOptions{
		ScoreThreshold:   d.ScoreThreshold,
		MaxResults:       d.MaxResults,
		SuppressOverlaps: d.SuppressOverlaps,
		IoUThreshold:     d.IoUThreshold,
		IoUWithMin:       d.IoUWithMin,
	}
}

func Default() *Config {
	detector := postprocess.DefaultDetectorOptions()
	return &Config{
		Model:    "model.synap",
		CacheDir: "~/.cache/npubridge/models",
		Preprocess: Preprocess{
			KeepAspectRatio: true,
		},
		Classifier: Classifier{
			TopCount: 1,
		},
		Detector: Detector{
			ScoreThreshold:   detector.ScoreThreshold,
			MaxResults:       detector.MaxResults,
			SuppressOverlaps: detector.SuppressOverlaps,
			IoUThreshold:     detector.IoUThreshold,
			IoUWithMin:       detector.IoUWithMin,
		},
	}
}

// Load reads the file at path over the defaults, then applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.UnmarshalWithOptions(data, c, yaml.DisallowUnknownField()); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	for name, field := range map[string]*string{
		"MODEL":      &c.Model,
		"META":       &c.Meta,
		"BLOBSERVER": &c.Blobserver,
		"CACHE_DIR":  &c.CacheDir,
	} {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

func (c *Config) Validate() error {
	if c.Classifier.TopCount < 1 {
		return fmt.Errorf("classifier.topCount must be at least 1, got %d", c.Classifier.TopCount)
	}
	if c.Detector.MaxResults < 0 {
		return fmt.Errorf("detector.maxResults must not be negative, got %d", c.Detector.MaxResults)
	}
	if t := c.Detector.IoUThreshold; t < 0 || t > 1 {
		return fmt.Errorf("detector.iouThreshold must be within [0, 1], got %v", t)
	}
	return nil
}

// ExpandedCacheDir resolves a leading ~/ in CacheDir.
func (c *Config) ExpandedCacheDir() (string, error) {
	if !strings.HasPrefix(c.CacheDir, "~/") {
		return c.CacheDir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(c.CacheDir, "~/")), nil
}
