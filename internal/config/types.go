package config

import (
	"time"
)

type SweepConfig struct {
	Benchmark  BenchmarkInfo     `yaml:"benchmark"`
	Command    CommandConfig     `yaml:"command"`
	Scrape     ScrapeConfig      `yaml:"scrape"`
	Dimensions []DimensionConfig `yaml:"dimensions"`
	Hook       *HookConfig       `yaml:"hook,omitempty"`
	Sampler    SamplerConfig     `yaml:"sampler"`
	Perf       PerfConfig        `yaml:"perf"`
	Output     OutputConfig      `yaml:"output"`
	Data       DataConfig        `yaml:"data"`
}

type BenchmarkInfo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	LogLevel    string `yaml:"log_level"`
	Repetitions int    `yaml:"repetitions"`
	// GroupDepth is how many leading dimensions delimit a block of output
	// lines; a blank line separates blocks.
	GroupDepth int `yaml:"group_depth"`
}

type CommandConfig struct {
	Binary      string   `yaml:"binary"`
	Args        []string `yaml:"args"`
	MergeStderr bool     `yaml:"merge_stderr"`
	Env         []string `yaml:"env,omitempty"`
}

type ScrapeConfig struct {
	Mode    string `yaml:"mode"`
	Pattern string `yaml:"pattern,omitempty"`
}

const (
	DimensionString = "string"
	DimensionInt    = "int"
)

type DimensionConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Values are kept as written. Integer dimensions accept arithmetic such
	// as 1024*64.
	Values []string `yaml:"values"`
}

type HookConfig struct {
	When            string      `yaml:"when"`
	EveryRepetition bool        `yaml:"every_repetition"`
	Flush           FlushConfig `yaml:"flush"`
}

type FlushConfig struct {
	Strategy string   `yaml:"strategy"`
	Command  []string `yaml:"command,omitempty"`
	Hosts    []string `yaml:"hosts,omitempty"`
	SSH      []string `yaml:"ssh,omitempty"`
}

const (
	SamplerSourceCommand = "command"
	SamplerSourceNetDev  = "netdev"
)

type SamplerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Source      string        `yaml:"source"`
	Command     []string      `yaml:"command,omitempty"`
	Interface   string        `yaml:"interface,omitempty"`
	LogFile     string        `yaml:"log_file"`
	HeaderLines *int          `yaml:"header_lines,omitempty"`
	InColumn    int           `yaml:"in_column"`
	OutColumn   int           `yaml:"out_column"`
	Grace       time.Duration `yaml:"grace"`
	Interval    time.Duration `yaml:"interval"`
	Scale       float64       `yaml:"scale"`
}

type PerfConfig struct {
	Enabled bool `yaml:"enabled"`
}

type OutputConfig struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path,omitempty"`
	// Labels prefixes text lines with the point's values.
	Labels bool `yaml:"labels,omitempty"`
}

type DataConfig struct {
	DB       DatabaseConfig `yaml:"db"`
	SpoolDir string         `yaml:"spool_dir,omitempty"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

// Enabled reports whether results should be exported.
func (db DatabaseConfig) Enabled() bool {
	return db.Host != ""
}

func (c *SweepConfig) DimensionNames() []string {
	names := make([]string, len(c.Dimensions))
	for i, d := range c.Dimensions {
		names[i] = d.Name
	}
	return names
}
