package graph

import (
	"testing"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
)

func TestFlattenScalar(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, ""},
		{"string", "copper", "copper"},
		{"bool", true, true},
		{"float", 2.5, 2.5},
		{"int", 42, 42},
		{"map", map[string]any{"a": 1}, `{"a":1}`},
		{"slice", []any{"x", "y"}, `["x","y"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flattenScalar(tt.in); got != tt.want {
				t.Fatalf("flattenScalar(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeRelType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CONNECTS_TO", "CONNECTS_TO"},
		{"connects_to", "CONNECTS_TO"},
		{"FLOWS_TO", "FLOWS_TO"},
		{"drop table; --", "DROPTABLE"},
		{"a]->(x) MATCH", "AXMATCH"},
		{"", "CONNECTS_TO"},
		{"$@!", "CONNECTS_TO"},
	}
	for _, tt := range tests {
		if got := sanitizeRelType(tt.in); got != tt.want {
			t.Errorf("sanitizeRelType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComponentWriteParamsDefaults(t *testing.T) {
	params := componentWriteParams("d1", Component{ID: "c1", Type: domain.ComponentVent, Name: "Roof vent"})
	if params["pos_x"] != 0.0 || params["pos_y"] != 0.0 || params["width"] != 0.0 || params["height"] != 0.0 {
		t.Fatalf("missing geometry should default to zero: %v", params)
	}
	if params["material"] != "" {
		t.Fatalf("missing properties should flatten to empty string: %v", params["material"])
	}
	if params["type"] != "vent" {
		t.Fatalf("type = %v", params["type"])
	}
}

func TestComponentWriteParamsNestedProperty(t *testing.T) {
	c := Component{
		ID:   "c1",
		Type: domain.ComponentPipe,
		Properties: map[string]any{
			"material": map[string]any{"outer": "pvc", "inner": "steel"},
		},
		Position:   &Position{X: 5, Y: 6},
		Dimensions: &Dimensions{Width: 7, Height: 8},
	}
	params := componentWriteParams("d1", c)
	if params["material"] != `{"inner":"steel","outer":"pvc"}` {
		t.Fatalf("nested property should serialize deterministically: %v", params["material"])
	}
	if params["pos_x"] != 5.0 || params["height"] != 8.0 {
		t.Fatalf("geometry not flattened: %v", params)
	}
}
