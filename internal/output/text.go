package output

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"sweep-bench/internal/sweep"
)

const (
	missingToken    = "NaN"
	terminatedToken = "!"
)

// Text writes one whitespace separated line per point: the repetition
// values, "NaN" for values that could not be scraped, and "!" when the
// point stopped early. Sampler totals follow as in/out tokens.
type Text struct {
	w *bufio.Writer
	// Labels prefixes every line with the point's values.
	Labels bool
}

func NewText(w io.Writer) *Text {
	return &Text{w: bufio.NewWriter(w)}
}

func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return missingToken
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Tokens renders a line without the trailing separator.
func Tokens(line *sweep.ResultLine, labels bool) []string {
	var tokens []string
	if labels {
		tokens = append(tokens, line.Point.Strings()...)
	}
	for _, v := range line.Values() {
		tokens = append(tokens, FormatValue(v))
	}
	for _, t := range line.Trials {
		if t.Traffic != nil {
			tokens = append(tokens, FormatValue(t.Traffic.In)+"/"+FormatValue(t.Traffic.Out))
		}
	}
	if line.Terminated {
		tokens = append(tokens, terminatedToken)
	}
	return tokens
}

func (t *Text) WriteLine(line *sweep.ResultLine) error {
	tokens := Tokens(line, t.Labels)
	s := strings.Join(tokens, " ")
	if len(tokens) > 0 {
		s += " "
	}
	if _, err := t.w.WriteString(s + "\n"); err != nil {
		return err
	}
	return t.w.Flush()
}

func (t *Text) WriteSeparator() error {
	if err := t.w.WriteByte('\n'); err != nil {
		return err
	}
	return t.w.Flush()
}

func (t *Text) Close() error {
	return t.w.Flush()
}
