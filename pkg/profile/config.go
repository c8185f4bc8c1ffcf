package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sections toggles the parts of a report.
type Sections struct {
	Overview     bool `yaml:"overview"`
	Variables    bool `yaml:"variables"`
	Missing      bool `yaml:"missing"`
	Correlations bool `yaml:"correlations"`
	TimeSeries   bool `yaml:"time_series"`
	Sample       bool `yaml:"sample"`
}

// ReportConfig is the report-section configuration file. Keys left out of
// the file keep their defaults.
type ReportConfig struct {
	Sections   Sections `yaml:"sections"`
	SampleRows int      `yaml:"sample_rows"` // rows shown in the sample section
	TopValues  int      `yaml:"top_values"`  // most frequent values per categorical column
	TimeBucket string   `yaml:"time_bucket"` // hour | day | week | month | year
}

// DefaultReportConfig enables every section.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Sections: Sections{
			Overview:     true,
			Variables:    true,
			Missing:      true,
			Correlations: true,
			TimeSeries:   true,
			Sample:       true,
		},
		SampleRows: 10,
		TopValues:  5,
		TimeBucket: "day",
	}
}

// LoadReportConfig reads path over the defaults. An empty path yields the
// defaults.
func LoadReportConfig(path string) (ReportConfig, error) {
	cfg := DefaultReportConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid report config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configured values.
func (c ReportConfig) Validate() error {
	switch c.TimeBucket {
	case "hour", "day", "week", "month", "year":
	default:
		return fmt.Errorf("unknown time_bucket %q", c.TimeBucket)
	}
	if c.SampleRows < 0 {
		return fmt.Errorf("sample_rows must not be negative")
	}
	if c.TopValues < 0 {
		return fmt.Errorf("top_values must not be negative")
	}
	return nil
}
