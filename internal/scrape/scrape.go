// Package scrape extracts numeric measurements from the free-form text a
// benchmark binary prints.
package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	ModeDecimal    = "decimal"
	ModeThroughput = "throughput"
	ModeRegexp     = "regexp"
)

var (
	numberPattern     = regexp.MustCompile(`-?[0-9]+(?:[.,][0-9]+)?`)
	throughputPattern = regexp.MustCompile(`(?i)([0-9]+(?:[.,][0-9]+)?)\s*([kmg])b/s`)
)

// unit scale factors relative to MB/s
var unitScale = map[string]float64{
	"k": 0.001,
	"m": 1,
	"g": 1000,
}

// ScrapeError reports captured text that did not contain the expected
// measurement. It is recovered per repetition and never aborts a sweep.
type ScrapeError struct {
	Text   string
	Reason string
}

func (e *ScrapeError) Error() string {
	text := e.Text
	if runes := []rune(text); len(runes) > 80 {
		text = string(runes[:80]) + "..."
	}
	return fmt.Sprintf("scrape: %s in %q", e.Reason, text)
}

type Scraper interface {
	Scrape(text string) (float64, error)
}

// New returns the scraper for a configured mode, Throughput when mode is
// empty. The pattern is only used by ModeRegexp and must contain one capture
// group.
func New(mode, pattern string) (Scraper, error) {
	switch strings.ToLower(mode) {
	case ModeDecimal:
		return Decimal{}, nil
	case "", ModeThroughput:
		return Throughput{}, nil
	case ModeRegexp:
		return NewRegexp(pattern)
	default:
		return nil, fmt.Errorf("unknown scrape mode %q", mode)
	}
}

// Normalize flattens text onto one line and turns a decimal comma into a
// period.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
}

func parseDecimal(token string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
}

// Decimal returns the first number found in the text.
type Decimal struct{}

func (Decimal) Scrape(text string) (float64, error) {
	token := numberPattern.FindString(Normalize(text))
	if token == "" {
		return 0, &ScrapeError{Text: text, Reason: "no number"}
	}
	v, err := parseDecimal(token)
	if err != nil {
		return 0, &ScrapeError{Text: text, Reason: err.Error()}
	}
	return v, nil
}

// Throughput reads a rate such as "1,2 GB/s" and normalises it to MB/s.
// Text without a rate unit is read as a plain decimal.
type Throughput struct{}

func (Throughput) Scrape(text string) (float64, error) {
	m := throughputPattern.FindStringSubmatch(text)
	if m == nil {
		return Decimal{}.Scrape(text)
	}
	v, err := parseDecimal(m[1])
	if err != nil {
		return 0, &ScrapeError{Text: text, Reason: err.Error()}
	}
	return v * unitScale[strings.ToLower(m[2])], nil
}

// Regexp reads the first capture group of a user supplied pattern.
type Regexp struct {
	re *regexp.Regexp
}

func NewRegexp(pattern string) (*Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("regexp scrape mode requires a pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid scrape pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("scrape pattern %q has no capture group", pattern)
	}
	return &Regexp{re: re}, nil
}

func (r *Regexp) Scrape(text string) (float64, error) {
	m := r.re.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return 0, &ScrapeError{Text: text, Reason: "pattern did not match"}
	}
	v, err := parseDecimal(strings.TrimSpace(m[1]))
	if err != nil {
		return 0, &ScrapeError{Text: text, Reason: err.Error()}
	}
	return v, nil
}
