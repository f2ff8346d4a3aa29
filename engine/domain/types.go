// Package domain holds the shared vocabulary of the scene-graph engine:
// the fixed component and relationship enumerations, the error taxonomy,
// and the boundary interfaces of external collaborators.
package domain

import "strings"

// ComponentType classifies a physical element found in a diagram.
type ComponentType string

const (
	ComponentPipe      ComponentType = "pipe"
	ComponentFixture   ComponentType = "fixture"
	ComponentConnector ComponentType = "connector"
	ComponentVent      ComponentType = "vent"
	ComponentValve     ComponentType = "valve"
	ComponentFitting   ComponentType = "fitting"
)

var componentTypes = map[ComponentType]bool{
	ComponentPipe:      true,
	ComponentFixture:   true,
	ComponentConnector: true,
	ComponentVent:      true,
	ComponentValve:     true,
	ComponentFitting:   true,
}

// ParseComponentType coerces a raw extractor tag into the fixed enumeration.
func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(strings.ToLower(strings.TrimSpace(s)))
	if !componentTypes[t] {
		return "", NewValidationError("component type", s, ErrUnknownComponentType)
	}
	return t, nil
}

// RelationType classifies a directed association between two components.
type RelationType string

const (
	RelConnectsTo RelationType = "CONNECTS_TO"
	RelAbove      RelationType = "ABOVE"
	RelBelow      RelationType = "BELOW"
	RelContains   RelationType = "CONTAINS"
	RelFlowsTo    RelationType = "FLOWS_TO"
	RelSupports   RelationType = "SUPPORTS"
	RelParallelTo RelationType = "PARALLEL_TO"
)

var relationTypes = map[RelationType]bool{
	RelConnectsTo: true,
	RelAbove:      true,
	RelBelow:      true,
	RelContains:   true,
	RelFlowsTo:    true,
	RelSupports:   true,
	RelParallelTo: true,
}

// RelationTypes returns the fixed relationship enumeration. Read queries use
// it to restrict typed-edge reconstruction.
func RelationTypes() []RelationType {
	return []RelationType{
		RelConnectsTo, RelAbove, RelBelow, RelContains,
		RelFlowsTo, RelSupports, RelParallelTo,
	}
}

// ParseRelationType coerces a raw extractor tag into the fixed enumeration.
func ParseRelationType(s string) (RelationType, error) {
	t := RelationType(strings.ToUpper(strings.TrimSpace(s)))
	if !relationTypes[t] {
		return "", NewValidationError("relationship type", s, ErrUnknownRelationType)
	}
	return t, nil
}
