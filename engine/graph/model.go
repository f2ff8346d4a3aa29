// Package graph holds the scene-graph domain model, the builder that
// validates raw extractor output into it, and the Neo4j store that
// persists and reconstructs it.
package graph

import "github.com/PlanSightAI/plansight-mvp/engine/domain"

// Position is a 2D location on the diagram.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions is a 2D extent on the diagram.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Component is one physical element of a diagram.
type Component struct {
	ID         string               `json:"id"`
	Type       domain.ComponentType `json:"type"`
	Name       string               `json:"name"`
	Properties map[string]any       `json:"properties,omitempty"`
	Position   *Position            `json:"position,omitempty"`
	Dimensions *Dimensions          `json:"dimensions,omitempty"`
}

// Relationship is a typed, directed edge between two components.
type Relationship struct {
	SourceID   string              `json:"source_id"`
	TargetID   string              `json:"target_id"`
	Type       domain.RelationType `json:"type"`
	Properties map[string]any      `json:"properties,omitempty"`
}

// SceneGraph is the validated aggregate for one processed diagram.
// Metadata always carries source_filename and processing_timestamp.
type SceneGraph struct {
	DiagramID     string            `json:"diagram_id"`
	Title         string            `json:"title,omitempty"`
	Components    []Component       `json:"components"`
	Relationships []Relationship    `json:"relationships"`
	Metadata      map[string]string `json:"metadata"`
}

// DiagramInfo is the flat projection of a persisted Diagram node.
type DiagramInfo struct {
	ID                  string `json:"diagram_id"`
	Title               string `json:"title"`
	DiagramType         string `json:"diagram_type,omitempty"`
	SourceFilename      string `json:"source_filename,omitempty"`
	ProcessingTimestamp string `json:"processing_timestamp,omitempty"`
	Scale               string `json:"scale,omitempty"`
	FloorLevel          string `json:"floor_level,omitempty"`
	BuildingZone        string `json:"building_zone,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
	ComponentCount      int64  `json:"component_count"`
}
