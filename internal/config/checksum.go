package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

type checksumDimension struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

type checksumPayload struct {
	Binary      string              `json:"binary"`
	Args        []string            `json:"args"`
	MergeStderr bool                `json:"merge_stderr"`
	ScrapeMode  string              `json:"scrape_mode"`
	Pattern     string              `json:"pattern,omitempty"`
	Repetitions int                 `json:"repetitions"`
	Dimensions  []checksumDimension `json:"dimensions"`
	HookWhen    string              `json:"hook_when,omitempty"`
	HookFlush   string              `json:"hook_flush,omitempty"`
}

// SweepChecksum returns a short, stable checksum that identifies the
// effective sweep: what gets executed and in which order, independent of
// output and export settings.
//
// It computes MD5 over a canonical JSON representation and returns the first 6 hex
// characters (equivalent to `md5sum | cut -c1-6`).
func SweepChecksum(cfg *SweepConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}

	spec, err := cfg.Spec()
	if err != nil {
		return "", err
	}

	payload := checksumPayload{
		Binary:      cfg.Command.Binary,
		Args:        cfg.Command.Args,
		MergeStderr: cfg.Command.MergeStderr,
		ScrapeMode:  cfg.Scrape.Mode,
		Pattern:     cfg.Scrape.Pattern,
		Repetitions: spec.Repetitions(),
	}
	// Values are canonicalised, so "1024*64" and "65536" hash alike.
	for _, d := range spec.Dimensions() {
		cd := checksumDimension{Name: d.Name, Type: d.Values[0].Kind().String()}
		for _, v := range d.Values {
			cd.Values = append(cd.Values, v.String())
		}
		payload.Dimensions = append(payload.Dimensions, cd)
	}
	if cfg.Hook != nil {
		payload.HookWhen = cfg.Hook.When
		payload.HookFlush = cfg.Hook.Flush.Strategy
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}
