package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port" validate:"min=1,max=65535"`
		MaxBodyBytes   int64    `yaml:"maxBodyBytes" validate:"gt=0"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimit      struct {
			Capacity   int `yaml:"capacity" validate:"gte=0"`
			RefillRate int `yaml:"refillRate" validate:"gte=0"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Analysis struct {
		Command       string        `yaml:"command" validate:"required"`
		Args          []string      `yaml:"args"`
		WorkDir       string        `yaml:"workDir" validate:"required"`
		WorkingFile   string        `yaml:"workingFile" validate:"required"`
		Layout        string        `yaml:"layout" validate:"oneof=shared per_request"`
		MaxConcurrent int64         `yaml:"maxConcurrent" validate:"gte=0"`
		Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
		QueueTimeout  time.Duration `yaml:"queueTimeout" validate:"gte=0"`
		MaxOutput     int64         `yaml:"maxOutputBytes" validate:"gte=0"`
		Env           []string      `yaml:"env"`
	} `yaml:"analysis"`

	AI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`
}

// Default is port 5000 running `python scripts/model.py` against data.json
func Default() *Config {
	var c Config
	c.Server.Port = 5000
	c.Server.MaxBodyBytes = 10 << 20
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.RateLimit.Capacity = 30
	c.Server.RateLimit.RefillRate = 1
	c.Analysis.Command = "python"
	c.Analysis.Args = []string{"scripts/model.py"}
	c.Analysis.WorkDir = "."
	c.Analysis.WorkingFile = "data.json"
	c.Analysis.Layout = "shared"
	c.Analysis.Timeout = 60 * time.Second
	c.Analysis.QueueTimeout = 30 * time.Second
	c.Analysis.MaxOutput = 32 << 20
	return &c
}

// Load baca file config.yaml di atas Default, lalu env override dan validasi.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints declared in the struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// applyEnv overrides file values with FINSIGHT_* variables
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FINSIGHT_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FINSIGHT_PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v := getenv("FINSIGHT_ANALYSIS_COMMAND"); v != "" {
		c.Analysis.Command = v
	}
	if v := getenv("FINSIGHT_ANALYSIS_ARGS"); v != "" {
		c.Analysis.Args = strings.Fields(v)
	}
	if v := getenv("FINSIGHT_WORK_DIR"); v != "" {
		c.Analysis.WorkDir = v
	}
	if v := getenv("FINSIGHT_WORKING_FILE"); v != "" {
		c.Analysis.WorkingFile = v
	}
	if v := getenv("FINSIGHT_LAYOUT"); v != "" {
		c.Analysis.Layout = v
	}
	if v := getenv("FINSIGHT_ANALYSIS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FINSIGHT_ANALYSIS_TIMEOUT: %w", err)
		}
		c.Analysis.Timeout = d
	}
	if v := getenv("FINSIGHT_QUEUE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FINSIGHT_QUEUE_TIMEOUT: %w", err)
		}
		c.Analysis.QueueTimeout = d
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := getenv("FINSIGHT_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	return nil
}

// WriteTimeout is the HTTP write budget of an upload: the slot wait plus the
// analysis plus a margin for reading and replying. 0 when either wait is
// unbounded.
func (c *Config) WriteTimeout() time.Duration {
	if c.Analysis.Timeout == 0 {
		return 0
	}
	gated := c.Analysis.Layout != "per_request" || c.Analysis.MaxConcurrent > 0
	if gated && c.Analysis.QueueTimeout == 0 {
		return 0
	}
	budget := c.Analysis.Timeout + 15*time.Second
	if gated {
		budget += c.Analysis.QueueTimeout
	}
	return budget
}

// Addr builds the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
