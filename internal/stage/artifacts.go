package stage

import (
	"maps"
	"strings"

	"lofi/internal/services"
)

// Artifact is a stage output: an opaque reference plus descriptive detail.
type Artifact struct {
	Ref    string         `json:"ref"`
	Detail map[string]any `json:"detail,omitempty"`
}

func (a Artifact) clone() Artifact {
	return Artifact{Ref: a.Ref, Detail: maps.Clone(a.Detail)}
}

// Artifacts is a read-only view of the outputs produced so far.
// With returns a new view; existing views never change.
type Artifacts struct {
	items map[Name]Artifact
}

// Get returns a copy of the artifact produced by name.
func (a Artifacts) Get(name Name) (Artifact, bool) {
	art, ok := a.items[name]
	if !ok {
		return Artifact{}, false
	}
	return art.clone(), true
}

// Ref returns the reference produced by name, or "".
func (a Artifacts) Ref(name Name) string {
	return a.items[name].Ref
}

// Len reports how many artifacts the view holds.
func (a Artifacts) Len() int {
	return len(a.items)
}

// Refs returns a copy of all references keyed by stage name.
func (a Artifacts) Refs() map[string]string {
	out := make(map[string]string, len(a.items))
	for name, art := range a.items {
		out[string(name)] = art.Ref
	}
	return out
}

// With returns a new view that also holds art under name.
func (a Artifacts) With(name Name, art Artifact) Artifacts {
	items := make(map[Name]Artifact, len(a.items)+1)
	for k, v := range a.items {
		items[k] = v
	}
	items[name] = art.clone()
	return Artifacts{items: items}
}

// Require fails with a validation error when any of deps has no reference.
func (a Artifacts) Require(current Name, deps ...Name) error {
	var missing []string
	for _, dep := range deps {
		if strings.TrimSpace(a.Ref(dep)) == "" {
			missing = append(missing, string(dep))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, string(current), "inputs",
		"missing artifacts from "+strings.Join(missing, ", "), nil)
}
