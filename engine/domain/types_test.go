package domain

import (
	"errors"
	"testing"
)

func TestParseComponentType(t *testing.T) {
	tests := []struct {
		in      string
		want    ComponentType
		wantErr bool
	}{
		{"pipe", ComponentPipe, false},
		{"fixture", ComponentFixture, false},
		{"connector", ComponentConnector, false},
		{"vent", ComponentVent, false},
		{"valve", ComponentValve, false},
		{"fitting", ComponentFitting, false},
		{"  Valve  ", ComponentValve, false},
		{"PIPE", ComponentPipe, false},
		{"duct", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseComponentType(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseComponentType(%q): expected error", tt.in)
			} else if !errors.Is(err, ErrUnknownComponentType) {
				t.Errorf("ParseComponentType(%q): expected ErrUnknownComponentType, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseComponentType(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseComponentType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRelationType(t *testing.T) {
	tests := []struct {
		in      string
		want    RelationType
		wantErr bool
	}{
		{"CONNECTS_TO", RelConnectsTo, false},
		{"connects_to", RelConnectsTo, false},
		{" flows_to ", RelFlowsTo, false},
		{"ABOVE", RelAbove, false},
		{"BELOW", RelBelow, false},
		{"CONTAINS", RelContains, false},
		{"SUPPORTS", RelSupports, false},
		{"PARALLEL_TO", RelParallelTo, false},
		{"NEAR", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRelationType(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownRelationType) {
				t.Errorf("ParseRelationType(%q): expected ErrUnknownRelationType, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRelationType(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseRelationType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelationTypesCoversVocabulary(t *testing.T) {
	types := RelationTypes()
	if len(types) != 7 {
		t.Fatalf("expected 7 relationship types, got %d", len(types))
	}
	seen := map[RelationType]bool{}
	for _, rt := range types {
		if seen[rt] {
			t.Fatalf("duplicate relationship type %q", rt)
		}
		seen[rt] = true
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("type", "duct", ErrUnknownComponentType)
	if !errors.Is(err, ErrUnknownComponentType) {
		t.Fatal("expected ValidationError to unwrap to its sentinel")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("expected errors.As to find ValidationError")
	}
	if ve.Field != "type" || ve.Value != "duct" {
		t.Fatalf("unexpected fields: %+v", ve)
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &ParseError{Raw: "not json", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected ParseError to unwrap to its cause")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
