package stage

import (
	"encoding/json"
	"strings"

	"lofi/internal/services"
)

// Params are the caller-supplied options for one run. Empty fields fall
// back to configured defaults inside the executors.
type Params struct {
	Prompt      string   `json:"prompt,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
}

// Normalize trims whitespace and drops empty tags.
func (p Params) Normalize() Params {
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	tags := make([]string, 0, len(p.Tags))
	for _, tag := range p.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		tags = nil
	}
	p.Tags = tags
	return p
}

// Encode serializes params for the run store.
func (p Params) Encode() (string, error) {
	data, err := json.Marshal(p.Normalize())
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "stage", "encode params", "", err)
	}
	return string(data), nil
}

// ParseParams decodes stored params. Empty input yields zero Params.
func ParseParams(raw string) (Params, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Params{}, nil
	}
	var p Params
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Params{}, services.Wrap(
			services.ErrValidation, "stage", "parse params",
			"Run parameters missing or invalid; trigger a new run", err)
	}
	return p.Normalize(), nil
}
