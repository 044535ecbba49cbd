package rules

import (
	"fmt"
	"strings"
)

// Baseline describes the trusted statistical profile of a model's embeddings.
// Deviations beyond the tolerances are treated as anomalies.
type Baseline struct {
	// Mean is the expected component mean for well-formed embeddings.
	Mean float64
	// MaxMeanDeviation bounds |observed mean - Mean|.
	MaxMeanDeviation float64
	// MinStdDev and MaxStdDev bound the component standard deviation.
	MinStdDev float64
	MaxStdDev float64
}

// ModelProfile declares an approved embedding model and the constraints its
// vectors must satisfy.
type ModelProfile struct {
	ID         string
	Provider   string
	Dimensions int
	// MinValue and MaxValue bound individual vector components.
	MinValue float64
	MaxValue float64
	Baseline Baseline
}

// Whitelist is the immutable table of approved embedding models. It is loaded
// once at startup and shared read-only; concurrent lookups need no locking.
type Whitelist struct {
	models map[string]ModelProfile
}

// NewWhitelist builds a whitelist from the given profiles.
func NewWhitelist(profiles []ModelProfile) (*Whitelist, error) {
	models := make(map[string]ModelProfile, len(profiles))
	for _, profile := range profiles {
		id := strings.TrimSpace(profile.ID)
		if id == "" {
			return nil, fmt.Errorf("rules: whitelist model id is required")
		}
		if profile.Dimensions <= 0 {
			return nil, fmt.Errorf("rules: whitelist model %s requires positive dimensions", id)
		}
		if profile.MinValue >= profile.MaxValue {
			return nil, fmt.Errorf("rules: whitelist model %s has an empty value range", id)
		}
		if _, dup := models[id]; dup {
			return nil, fmt.Errorf("rules: duplicate whitelist model %s", id)
		}
		models[id] = profile
	}
	return &Whitelist{models: models}, nil
}

// Lookup returns the profile for the given model identifier.
func (w *Whitelist) Lookup(modelID string) (ModelProfile, bool) {
	profile, ok := w.models[strings.TrimSpace(modelID)]
	return profile, ok
}

// Len returns the number of approved models.
func (w *Whitelist) Len() int {
	return len(w.models)
}

// defaultBaseline matches the centered, unit-bounded embeddings produced by
// the approved providers.
var defaultBaseline = Baseline{
	Mean:             0,
	MaxMeanDeviation: 0.5,
	MinStdDev:        0.01,
	MaxStdDev:        1.0,
}

// DefaultWhitelist returns the built-in approved model table.
func DefaultWhitelist() *Whitelist {
	wl, err := NewWhitelist([]ModelProfile{
		{ID: "text-embedding-ada-002", Provider: "openai", Dimensions: 1536, MinValue: -1, MaxValue: 1, Baseline: defaultBaseline},
		{ID: "sentence-transformers/all-MiniLM-L6-v2", Provider: "huggingface", Dimensions: 384, MinValue: -1, MaxValue: 1, Baseline: defaultBaseline},
		{ID: "embed-english-v2.0", Provider: "cohere", Dimensions: 4096, MinValue: -1, MaxValue: 1, Baseline: defaultBaseline},
	})
	if err != nil {
		panic(err)
	}
	return wl
}
