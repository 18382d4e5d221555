package runner

import (
	"fmt"
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Params resolves the placeholder names used in an argument template.
type Params interface {
	Lookup(name string) (string, bool)
}

// MapParams is a Params backed by a plain map.
type MapParams map[string]string

func (m MapParams) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Expand substitutes every {name} in the template. Each template entry stays
// one argument, so values are never split or interpreted by a shell. An entry
// that is exactly one placeholder resolving to "" is dropped.
func Expand(template []string, params Params) ([]string, error) {
	args := make([]string, 0, len(template))
	for _, arg := range template {
		var missing string
		expanded := placeholderPattern.ReplaceAllStringFunc(arg, func(match string) string {
			name := match[1 : len(match)-1]
			v, ok := params.Lookup(name)
			if !ok && missing == "" {
				missing = name
			}
			return v
		})
		if missing != "" {
			return nil, fmt.Errorf("argument %q references unknown parameter %q", arg, missing)
		}
		if expanded == "" && placeholderPattern.FindString(arg) == arg {
			continue
		}
		args = append(args, expanded)
	}
	return args, nil
}

// Placeholders lists the parameter names referenced by a template, in order of
// first use.
func Placeholders(template []string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, arg := range template {
		for _, m := range placeholderPattern.FindAllStringSubmatch(arg, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}
