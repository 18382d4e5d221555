package config

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// ProfileNames lists the built-in sweep profiles.
func ProfileNames() []string {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// LoadProfile loads a built-in profile the same way LoadConfigWithContent
// loads a file, environment expansion included.
func LoadProfile(name string) (*SweepConfig, string, error) {
	data, err := profileFS.ReadFile(path.Join("profiles", name+".yaml"))
	if err != nil {
		return nil, "", fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, "", fmt.Errorf("profile %s: %w", name, err)
	}
	return config, string(data), nil
}
