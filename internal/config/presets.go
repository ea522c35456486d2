package config

import "sort"

// Preset is a named parameter set a client can request with
// {"sim_type": ..., "preset": ...}. Client supplied keys win over the preset.
type Preset struct {
	Description string
	Params      map[string]any
}

var Presets = map[string]map[string]Preset{
	"cartpole": {
		"balance": {
			Description: "regulator holds the pole upright",
			Params:      map[string]any{"controllers": []any{"lqr"}},
		},
		"swingup": {
			Description: "policy swings the pole up from hanging, regulator catches it",
			Params: map[string]any{
				"controllers":   []any{"lqr", "fvi"},
				"initial_state": []any{0.0, 0.05, 0.0, 0.0},
			},
		},
		"manual": {
			Description: "keyboard only",
			Params:      map[string]any{"controllers": []any{"manual"}},
		},
		"assist": {
			Description: "regulator with additive keyboard disturbance",
			Params:      map[string]any{"controllers": []any{"lqr", "manual"}},
		},
		"tracking": {
			Description: "angle tracking loop",
			Params:      map[string]any{"controllers": []any{"pid"}},
		},
	},
	"pendulum": {
		"balance": {
			Description: "regulator holds the pendulum inverted",
			Params:      map[string]any{"controllers": []any{"lqr"}},
		},
		"swingup": {
			Description: "policy swings the pendulum up from rest",
			Params: map[string]any{
				"controllers":   []any{"fvi"},
				"initial_state": []any{0.0, 0.0},
			},
		},
		"heavy": {
			Description: "doubled bob mass under tracking control",
			Params:      map[string]any{"controllers": []any{"pid"}, "mass": 2.0},
		},
	},
}

// GetPreset returns a copy of the preset's parameters, or nil.
func GetPreset(simType, preset string) map[string]any {
	simPresets, ok := Presets[simType]
	if !ok {
		return nil
	}
	p, ok := simPresets[preset]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(p.Params))
	for k, v := range p.Params {
		out[k] = v
	}
	return out
}

func ListPresets(simType string) []string {
	simPresets, ok := Presets[simType]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(simPresets))
	for name := range simPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
