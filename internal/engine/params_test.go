package engine

import (
	"encoding/json"
	"testing"
)

func TestParamsAccessors(t *testing.T) {
	var p Params
	if err := json.Unmarshal([]byte(`{
		"sim_type": "pendulum",
		"mass": 2.5,
		"seed": "17",
		"controllers": ["lqr", "manual"],
		"initial_state": [3.1, 0],
		"flags": "lqr, pid"
	}`), &p); err != nil {
		t.Fatal(err)
	}

	if p.SimType() != "pendulum" {
		t.Errorf("SimType = %q", p.SimType())
	}
	if v, err := p.Float("mass", 0); err != nil || v != 2.5 {
		t.Errorf("Float(mass) = %g, %v", v, err)
	}
	if v, err := p.Float("length", 1.5); err != nil || v != 1.5 {
		t.Errorf("Float default = %g, %v", v, err)
	}
	if v, err := p.Int64("seed", 0); err != nil || v != 17 {
		t.Errorf("Int64(seed) = %d, %v", v, err)
	}
	if s, err := p.Strings("controllers"); err != nil || len(s) != 2 || s[1] != "manual" {
		t.Errorf("Strings(controllers) = %v, %v", s, err)
	}
	if s, err := p.Strings("flags"); err != nil || len(s) != 2 || s[1] != "pid" {
		t.Errorf("Strings(flags) = %v, %v", s, err)
	}
	if x, ok, err := p.State("initial_state"); err != nil || !ok || len(x) != 2 || x[0] != 3.1 {
		t.Errorf("State = %v, %v, %v", x, ok, err)
	}
	if _, ok, _ := p.State("missing"); ok {
		t.Error("State reported a missing key as present")
	}
	if _, err := p.Float("controllers", 0); err == nil {
		t.Error("expected error converting a list to a number")
	}
}

func TestParamsMergeDoesNotAlias(t *testing.T) {
	base := Params{"mass": 1.0, "sim_type": "cartpole"}
	merged := base.Merge(Params{"mass": 2.0})

	if base["mass"] != 1.0 {
		t.Error("Merge mutated the receiver")
	}
	if merged["mass"] != 2.0 || merged.SimType() != "cartpole" {
		t.Errorf("merged = %v", merged)
	}
	if (Params{}).SimType() != DefaultSimType {
		t.Error("missing sim_type should fall back to the default")
	}
}
