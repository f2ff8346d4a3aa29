package graph

import (
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
)

// flattenScalar reduces a property value to something Neo4j can store on a
// node: scalars pass through, nil becomes the empty string, and any nested
// dict/array is serialized to its string representation.
func flattenScalar(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return t
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprint(v)
	}
}

// diagramWriteParams flattens SceneGraph metadata into the fixed Diagram
// node fields.
func diagramWriteParams(g SceneGraph) map[string]any {
	return map[string]any{
		"diagram_id":           g.DiagramID,
		"title":                g.Title,
		"diagram_type":         g.Metadata["diagram_type"],
		"source_filename":      g.Metadata["source_filename"],
		"processing_timestamp": g.Metadata["processing_timestamp"],
		"scale":                g.Metadata["scale"],
		"building_zone":        g.Metadata["building_zone"],
		"floor_level":          g.Metadata["floor_level"],
	}
}

// componentWriteParams flattens a Component into scalar node fields.
func componentWriteParams(diagramID string, c Component) map[string]any {
	params := map[string]any{
		"diagram_id":     diagramID,
		"id":             c.ID,
		"type":           string(c.Type),
		"name":           c.Name,
		"material":       flattenScalar(c.Properties["material"]),
		"diameter":       flattenScalar(c.Properties["diameter"]),
		"length":         flattenScalar(c.Properties["length"]),
		"flow_direction": flattenScalar(c.Properties["flow_direction"]),
		"pos_x":          0.0,
		"pos_y":          0.0,
		"width":          0.0,
		"height":         0.0,
	}
	if c.Position != nil {
		params["pos_x"] = c.Position.X
		params["pos_y"] = c.Position.Y
	}
	if c.Dimensions != nil {
		params["width"] = c.Dimensions.Width
		params["height"] = c.Dimensions.Height
	}
	return params
}

// relationshipWriteParams flattens a Relationship's scalar edge properties.
func relationshipWriteParams(r Relationship) map[string]any {
	return map[string]any{
		"source_id": r.SourceID,
		"target_id": r.TargetID,
		"distance":  flattenScalar(r.Properties["distance"]),
		"angle":     flattenScalar(r.Properties["angle"]),
	}
}

// componentFromRecord reads the flat projection emitted by the component
// read query back into a Component.
func componentFromRecord(rec *neo4j.Record) Component {
	c := Component{
		ID:   strVal(rec, "id"),
		Name: strVal(rec, "name"),
		Type: domain.ComponentType(strVal(rec, "type")),
	}

	props := map[string]any{}
	for _, key := range []string{"material", "diameter", "length", "flow_direction"} {
		if v, ok := rec.Get(key); ok && v != nil && v != "" {
			props[key] = v
		}
	}
	if len(props) > 0 {
		c.Properties = props
	}

	c.Position = &Position{X: floatVal(rec, "position_x"), Y: floatVal(rec, "position_y")}
	c.Dimensions = &Dimensions{Width: floatVal(rec, "width"), Height: floatVal(rec, "height")}
	return c
}

func strVal(rec *neo4j.Record, key string) string {
	if v, ok := rec.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatVal(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func intVal(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// sanitizeRelType restricts a relationship type to a safe Cypher
// identifier. The builder only emits enum values, but the type is
// interpolated into the query text, so it is sanitized regardless.
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		c := t[i]
		switch {
		case c >= 'a' && c <= 'z':
			safe = append(safe, c-32)
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_':
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return string(domain.RelConnectsTo)
	}
	return string(safe)
}
