// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package nbrun

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-jsonnet"
	"github.com/hashicorp/go-getter"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"cikit.io/pkg/nbexec"
)

// Config lists the notebooks to run and how to run them.
type Config struct {
	// Dir holds the notebooks. A relative Dir read from a file is relative to that file.
	Dir     string
	Kernel  string
	Timeout time.Duration
	// Notebooks are names relative to Dir.
	Notebooks []string
	// Sources maps a notebook name to a go-getter source it can be fetched from when missing.
	Sources map[string]string
	// Root is the directory relative sources are resolved against.
	Root string
}

type fileConfig struct {
	Dir       string            `yaml:"dir" toml:"dir"`
	Kernel    string            `yaml:"kernel" toml:"kernel"`
	Timeout   any               `yaml:"timeout" toml:"-"`
	Notebooks []string          `yaml:"notebooks" toml:"notebooks"`
	Sources   map[string]string `yaml:"sources" toml:"sources"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Dir:     DefaultDir,
		Kernel:  nbexec.DefaultKernel,
		Timeout: nbexec.DefaultTimeout,
		Root:    ".",
	}
}

// LoadConfig reads a configuration file. The format is chosen by extension:
// .yaml, .yml and .json are YAML, .toml is TOML and .jsonnet is evaluated as Jsonnet.
func LoadConfig(filename string) (*Config, error) {
	raw, err := decodeConfig(filename)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", filename, err)
	}

	cfg := DefaultConfig()
	cfg.Root = filepath.Dir(filename)
	if raw.Dir != "" {
		cfg.Dir = raw.Dir
	}
	if !filepath.IsAbs(cfg.Dir) {
		cfg.Dir = filepath.Join(cfg.Root, cfg.Dir)
	}
	if raw.Kernel != "" {
		cfg.Kernel = raw.Kernel
	}
	if raw.Timeout != nil {
		if cfg.Timeout, err = ParseTimeout(raw.Timeout); err != nil {
			return nil, fmt.Errorf("%q: %w", filename, err)
		}
	}
	cfg.Notebooks = raw.Notebooks
	cfg.Sources = raw.Sources
	for name := range cfg.Sources {
		if !contains(cfg.Notebooks, name) {
			return nil, fmt.Errorf("%q: source for unlisted notebook %q", filename, name)
		}
	}
	return cfg, nil
}

func decodeConfig(filename string) (*fileConfig, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var raw fileConfig
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml", ".json":
		err = yaml.Unmarshal(src, &raw)
	case ".toml":
		var t *toml.Tree
		if t, err = toml.LoadBytes(src); err != nil {
			return nil, err
		}
		if err = t.Unmarshal(&raw); err != nil {
			return nil, err
		}
		raw.Timeout = t.Get("timeout")
	case ".jsonnet":
		var js string
		if js, err = jsonnet.MakeVM().EvaluateAnonymousSnippet(filename, string(src)); err != nil {
			return nil, err
		}
		err = yaml.Unmarshal([]byte(js), &raw)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

// ParseTimeout accepts a duration string ("10m") or a number of seconds.
func ParseTimeout(v any) (time.Duration, error) {
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case uint64:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case string:
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("bad timeout %q", t)
		}
		return d, nil
	}
	return 0, fmt.Errorf("bad timeout %v (%T)", v, v)
}

func contains(l []string, s string) bool {
	for _, e := range l {
		if e == s {
			return true
		}
	}
	return false
}

// Fetch downloads the listed notebooks that are missing from Dir and have a source.
// Notebooks already present are never overwritten.
func (c *Config) Fetch(ctx context.Context, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var errs []error
	for _, name := range c.Notebooks {
		src, ok := c.Sources[name]
		if !ok {
			continue
		}
		dst := filepath.Join(c.Dir, name)
		if _, err := os.Stat(dst); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}

		log.Info("fetching notebook", "notebook", dst, "source", src)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := getter.GetFile(dst, src, getter.WithContext(ctx), c.getterOptions); err != nil {
			errs = append(errs, fmt.Errorf("fetching %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// getterOptions resolves relative sources against Root. Local files are copied, not symlinked.
func (c *Config) getterOptions(g *getter.Client) (err error) {
	g.Pwd, err = filepath.Abs(c.Root)
	getters := make(map[string]getter.Getter, len(getter.Getters))
	for k, v := range getter.Getters {
		getters[k] = v
	}
	getters["file"] = &getter.FileGetter{Copy: true}
	g.Getters = getters
	return
}
