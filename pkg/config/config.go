// Package config provides per-invocation configuration.
// Priority: defaults < YAML file < environment < flags (applied by the caller).
// There is no global instance: the entry point builds one Config per run and
// passes it down.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	edaerrors "github.com/visilake/edaproc/pkg/errors"
	"github.com/visilake/edaproc/pkg/tabular"
)

// Source kinds.
const (
	SourceHTTP  = "http"
	SourceS3    = "s3"
	SourceLocal = "local"
)

// Report formats.
const (
	FormatHTML = "html"
	FormatXLSX = "xlsx"
)

// Config holds all edaproc configuration.
type Config struct {
	Version int `yaml:"version"`

	Source    SourceConfig    `yaml:"source"`
	Output    OutputConfig    `yaml:"output"`
	Profile   ProfileConfig   `yaml:"profile"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SourceConfig selects where the upstream dataset is read from.
type SourceConfig struct {
	Kind string `yaml:"kind"` // http | s3 | local

	// BaseURL is the HTTP root objects are fetched from as
	// {base_url}/{request_id}/{object_name}.
	BaseURL string `yaml:"base_url"`

	// S3-compatible endpoint used for listing (and fetching when kind is s3)
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"` // used when the prefix names no bucket
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// LocalRoot resolves relative prefixes when kind is local.
	LocalRoot string `yaml:"local_root"`

	// HTTPTimeout bounds a single HTTP fetch. Zero means no timeout.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// OutputConfig controls where materialized files go.
type OutputConfig struct {
	Root        string `yaml:"root"`        // request directories are created below this
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
}

// ProfileConfig parameterizes the profile generator.
type ProfileConfig struct {
	SampleSize int    `yaml:"sample_size"`
	TimeColumn string `yaml:"time_column"`
	ConfigFile string `yaml:"config_file"` // report-section configuration, optional
	Format     string `yaml:"format"`      // html | xlsx
}

// TelemetryConfig for optional trace export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"` // OTLP gRPC endpoint, empty disables export
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Default returns the default configuration. It targets the LocalStack
// deployment the scheduler runs against.
func Default() *Config {
	return &Config{
		Version: 1,
		Source: SourceConfig{
			Kind:            SourceHTTP,
			BaseURL:         "http://s3.us-east-1.localhost.localstack.cloud:4566/metadata",
			Endpoint:        "http://localhost.localstack.cloud:4566",
			Region:          "us-east-1",
			UsePathStyle:    true,
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			LocalRoot:       ".",
		},
		Output: OutputConfig{
			Root:        "outputs",
			Compression: "snappy",
		},
		Profile: ProfileConfig{
			SampleSize: 1000,
			TimeColumn: "date local",
			Format:     FormatHTML,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "edaproc",
			Insecure:    true,
		},
	}
}

// Load builds a configuration from defaults, the optional YAML file at path,
// and the environment. An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("EDAPROC_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, edaerrors.Wrap(err, edaerrors.CodeConfig, "failed to load config file").
				WithContext("path", path)
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file at path over c. Keys the file sets replace
// the current values, including false and zero; absent keys keep them.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadEnv loads configuration from environment variables.
func (c *Config) loadEnv() error {
	if v := os.Getenv("EDAPROC_SOURCE"); v != "" {
		c.Source.Kind = v
	}
	if v := os.Getenv("EDAPROC_BASE_URL"); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv("EDAPROC_S3_ENDPOINT"); v != "" {
		c.Source.Endpoint = v
	}
	if v := os.Getenv("EDAPROC_REGION"); v != "" {
		c.Source.Region = v
	}
	if v := os.Getenv("EDAPROC_OUTPUT_DIR"); v != "" {
		c.Output.Root = v
	}
	if v := os.Getenv("EDAPROC_PROFILE_CONFIG"); v != "" {
		c.Profile.ConfigFile = v
	}
	if v := os.Getenv("EDAPROC_SAMPLE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return edaerrors.Wrap(err, edaerrors.CodeConfig, "invalid EDAPROC_SAMPLE_SIZE")
		}
		c.Profile.SampleSize = n
	}
	if v := os.Getenv("EDAPROC_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	return nil
}

// Validate checks the values a run depends on.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceHTTP:
		if c.Source.BaseURL == "" {
			return edaerrors.New(edaerrors.CodeConfig, "source.base_url is required for the http source")
		}
	case SourceS3, SourceLocal:
	default:
		return edaerrors.Newf(edaerrors.CodeConfig, "unknown source kind %q", c.Source.Kind)
	}

	switch strings.ToLower(c.Profile.Format) {
	case FormatHTML, FormatXLSX:
	default:
		return edaerrors.Newf(edaerrors.CodeConfig, "unknown report format %q", c.Profile.Format)
	}

	if _, err := tabular.ParseCompression(c.Output.Compression); err != nil {
		return edaerrors.Wrap(err, edaerrors.CodeConfig, "invalid output.compression")
	}

	if c.Profile.SampleSize <= 0 {
		return edaerrors.Newf(edaerrors.CodeConfig, "profile.sample_size must be positive, got %d", c.Profile.SampleSize)
	}
	if c.Output.Root == "" {
		return edaerrors.New(edaerrors.CodeConfig, "output.root is required")
	}
	return nil
}

// String renders the effective configuration without secrets, for verbose logs.
func (c *Config) String() string {
	return fmt.Sprintf("source=%s base_url=%s endpoint=%s output=%s sample=%d time_column=%q format=%s",
		c.Source.Kind, c.Source.BaseURL, c.Source.Endpoint, c.Output.Root,
		c.Profile.SampleSize, c.Profile.TimeColumn, c.Profile.Format)
}
