package config

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"sweep-bench/internal/cacheflush"
	"sweep-bench/internal/logging"
	"sweep-bench/internal/output"
	"sweep-bench/internal/runner"
	"sweep-bench/internal/scrape"
	"sweep-bench/internal/sweep"

	"github.com/casbin/govaluate"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRepetitions = 5
	DefaultSamplerLog  = "/tmp/sweep-bench-sampler.log"
)

var (
	envPattern  = regexp.MustCompile(`\$\{([^}]+)\}`)
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func LoadConfigWithContent(filepath string) (*SweepConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	config, err := ParseConfig(data)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to load config file")
		return nil, "", err
	}
	return config, string(data), nil
}

// ParseConfig expands environment variables, decodes the YAML, fills in
// defaults and validates the result.
func ParseConfig(data []byte) (*SweepConfig, error) {
	expanded := expandEnvVars(string(data))

	var config SweepConfig
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default}. Unset variables without
// a default are left as written.
func expandEnvVars(content string) string {
	return envPattern.ReplaceAllStringFunc(content, func(match string) string {
		expr := match[2 : len(match)-1]
		name, def, hasDefault := strings.Cut(expr, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func applyDefaults(c *SweepConfig) {
	if c.Benchmark.Repetitions == 0 {
		c.Benchmark.Repetitions = DefaultRepetitions
	}
	if c.Scrape.Mode == "" {
		c.Scrape.Mode = scrape.ModeThroughput
	}
	for i := range c.Dimensions {
		if c.Dimensions[i].Type == "" {
			c.Dimensions[i].Type = DimensionString
		}
	}
	if c.Hook != nil {
		f := &c.Hook.Flush
		f.Strategy = strings.ToLower(f.Strategy)
		switch f.Strategy {
		case cacheflush.StrategyLocal:
			if len(f.Command) == 0 {
				f.Command = cacheflush.DefaultLocalCommand
			}
		case cacheflush.StrategyRemote:
			if len(f.Command) == 0 {
				f.Command = cacheflush.DefaultRemoteCommand
			}
			if len(f.SSH) == 0 {
				f.SSH = cacheflush.DefaultSSH
			}
		}
	}

	s := &c.Sampler
	if s.Source == "" {
		s.Source = SamplerSourceCommand
	}
	if s.LogFile == "" {
		s.LogFile = DefaultSamplerLog
	}
	if s.HeaderLines == nil {
		n := 2
		s.HeaderLines = &n
	}
	if s.OutColumn == 0 && s.InColumn == 0 {
		s.OutColumn = 1
	}
	if s.Grace == 0 {
		s.Grace = time.Second
	}
	if s.Interval == 0 {
		s.Interval = time.Second
	}
	if s.Scale == 0 {
		s.Scale = 1
	}

	if c.Output.Format == "" {
		c.Output.Format = output.FormatText
	}
}

func validateConfig(config *SweepConfig) error {
	if config.Benchmark.Name == "" {
		return fmt.Errorf("benchmark name is required")
	}
	if config.Benchmark.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1")
	}
	if config.Command.Binary == "" {
		return fmt.Errorf("command binary is required")
	}
	if len(config.Dimensions) == 0 {
		return fmt.Errorf("at least one dimension must be defined")
	}

	spec, err := config.Spec()
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(spec.Names()))
	for _, n := range spec.Names() {
		known[n] = true
	}
	for _, p := range runner.Placeholders(config.Command.Args) {
		if !known[p] {
			return fmt.Errorf("command argument references unknown dimension {%s}", p)
		}
	}

	if _, err := config.Scraper(); err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	if config.Hook != nil {
		if _, err := config.BuildHook(); err != nil {
			return fmt.Errorf("hook: %w", err)
		}
	}

	if err := validateSampler(&config.Sampler); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}

	switch strings.ToLower(config.Output.Format) {
	case output.FormatText, output.FormatJSON:
	case output.FormatXLSX:
		if config.Output.Path == "" {
			return fmt.Errorf("output: xlsx format needs a path")
		}
	default:
		return fmt.Errorf("output: unknown format %q", config.Output.Format)
	}

	db := config.Data.DB
	if db.Enabled() && (db.Name == "" || db.Password == "" || db.Org == "") {
		return fmt.Errorf("incomplete database configuration")
	}

	return nil
}

func validateSampler(s *SamplerConfig) error {
	if !s.Enabled {
		return nil
	}
	switch s.Source {
	case SamplerSourceCommand:
		if len(s.Command) == 0 {
			return fmt.Errorf("command source needs a command")
		}
	case SamplerSourceNetDev:
		if s.Interface == "" {
			return fmt.Errorf("netdev source needs an interface")
		}
	default:
		return fmt.Errorf("unknown source %q", s.Source)
	}
	if *s.HeaderLines < 0 || s.InColumn < 0 || s.OutColumn < 0 {
		return fmt.Errorf("header lines and columns must not be negative")
	}
	if s.InColumn == s.OutColumn {
		return fmt.Errorf("in and out columns must differ")
	}
	if s.Grace < 0 || s.Interval <= 0 {
		return fmt.Errorf("grace must not be negative and interval must be positive")
	}
	return nil
}

// parseValue turns one configured value into a typed sweep value.
func parseValue(kind, raw string) (sweep.Value, error) {
	switch kind {
	case DimensionString:
		return sweep.StringValue(raw), nil
	case DimensionInt:
		n, err := evalInt(raw)
		if err != nil {
			return sweep.Value{}, err
		}
		return sweep.IntValue(n), nil
	default:
		return sweep.Value{}, fmt.Errorf("unknown dimension type %q", kind)
	}
}

// evalInt evaluates integer arithmetic such as "512*1024*1024".
func evalInt(raw string) (int64, error) {
	expr, err := govaluate.NewEvaluableExpression(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	if vars := expr.Vars(); len(vars) > 0 {
		return 0, fmt.Errorf("invalid integer %q: unexpected name %q", raw, vars[0])
	}
	result, err := expr.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	f, ok := result.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("invalid integer %q: evaluates to %v", raw, result)
	}
	return int64(f), nil
}
