package sweep

import (
	"context"
	"fmt"

	"sweep-bench/internal/cacheflush"

	"github.com/casbin/govaluate"
)

// Predicate is a boolean expression over dimension names, for example
// `cache == 'cold'`.
type Predicate struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// CompilePredicate parses expr and checks that it only refers to the given
// dimension names.
func CompilePredicate(expr string, names []string) (*Predicate, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid predicate %q: %w", expr, err)
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, v := range compiled.Vars() {
		if !known[v] {
			return nil, fmt.Errorf("predicate %q references unknown dimension %q", expr, v)
		}
	}
	return &Predicate{source: expr, expr: compiled}, nil
}

func (p *Predicate) String() string {
	return p.source
}

func (p *Predicate) Match(point Point) (bool, error) {
	result, err := p.expr.Evaluate(point.Params())
	if err != nil {
		return false, fmt.Errorf("evaluate %q for %s: %w", p.source, point, err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q returned %T, not bool", p.source, result)
	}
	return b, nil
}

// Hook runs before the first repetition of every point its predicate
// matches, or before every repetition when EveryRepetition is set. A nil
// predicate never matches.
type Hook struct {
	When            *Predicate
	Flusher         cacheflush.Flusher
	EveryRepetition bool
}

func (h *Hook) due(rep int) bool {
	return h != nil && (rep == 1 || h.EveryRepetition)
}

func (h *Hook) apply(ctx context.Context, point Point) (bool, error) {
	if h == nil || h.When == nil || h.Flusher == nil {
		return false, nil
	}
	ok, err := h.When.Match(point)
	if err != nil || !ok {
		return false, err
	}
	return true, h.Flusher.Flush(ctx)
}
