package graph

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
)

// Builder converts a raw candidate graph into a validated SceneGraph.
// Malformed entries are logged and skipped one at a time; a single bad
// component or relationship never sinks the build. The diagram identifier
// is always freshly assigned, never taken from the extractor.
type Builder struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewBuilder creates a Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger, now: time.Now, newID: uuid.NewString}
}

// Build validates raw extractor output into a SceneGraph for the named
// source file. The result contains only enum-conformant members whose
// relationship endpoints are components of this same graph.
func (b *Builder) Build(raw map[string]any, filename string) SceneGraph {
	g := SceneGraph{
		DiagramID: b.newID(),
		Metadata:  map[string]string{},
	}

	memberIDs := make(map[string]bool)
	for _, entry := range asSlice(raw["components"]) {
		c, err := b.componentFromRaw(entry)
		if err != nil {
			b.logger.Warn("build: skipping invalid component", "error", err)
			continue
		}
		g.Components = append(g.Components, c)
		memberIDs[c.ID] = true
	}

	for _, entry := range asSlice(raw["relationships"]) {
		r, err := relationshipFromRaw(entry)
		if err != nil {
			b.logger.Warn("build: skipping invalid relationship", "error", err)
			continue
		}
		if !memberIDs[r.SourceID] || !memberIDs[r.TargetID] {
			b.logger.Warn("build: skipping relationship with unknown endpoint",
				"source_id", r.SourceID, "target_id", r.TargetID)
			continue
		}
		g.Relationships = append(g.Relationships, r)
	}

	if title, ok := raw["title"].(string); ok && title != "" {
		g.Title = title
	} else {
		g.Title = "Diagram from " + filename
	}

	if meta, ok := raw["metadata"].(map[string]any); ok {
		for k, v := range meta {
			g.Metadata[k] = fmt.Sprint(v)
		}
	}
	g.Metadata["source_filename"] = filename
	g.Metadata["processing_timestamp"] = b.now().UTC().Format(time.RFC3339)

	b.logger.Info("build: scene graph assembled",
		"diagram_id", g.DiagramID,
		"components", len(g.Components),
		"relationships", len(g.Relationships),
	)
	return g
}

func (b *Builder) componentFromRaw(entry any) (Component, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Component{}, fmt.Errorf("component entry is %T, not an object", entry)
	}

	// The extractor may omit the type; the original schema treats pipe as
	// the default. An unrecognized tag is still an error.
	typeTag, _ := m["type"].(string)
	if typeTag == "" {
		typeTag = string(domain.ComponentPipe)
	}
	ctype, err := domain.ParseComponentType(typeTag)
	if err != nil {
		return Component{}, err
	}

	c := Component{Type: ctype, Name: "Unknown"}
	if id, ok := m["id"].(string); ok && id != "" {
		c.ID = id
	} else {
		c.ID = uuid.NewString()
	}
	if name, ok := m["name"].(string); ok && name != "" {
		c.Name = name
	}
	if props, ok := m["properties"].(map[string]any); ok {
		c.Properties = props
	}

	if c.Position, err = pointFromRaw(m["position"]); err != nil {
		return Component{}, fmt.Errorf("component %s: %w", c.ID, err)
	}
	if c.Dimensions, err = extentFromRaw(m["dimensions"]); err != nil {
		return Component{}, fmt.Errorf("component %s: %w", c.ID, err)
	}
	return c, nil
}

func relationshipFromRaw(entry any) (Relationship, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Relationship{}, fmt.Errorf("relationship entry is %T, not an object", entry)
	}

	src, _ := m["source_id"].(string)
	dst, _ := m["target_id"].(string)
	if src == "" || dst == "" {
		return Relationship{}, fmt.Errorf("relationship missing source_id or target_id")
	}

	typeTag, _ := m["type"].(string)
	if typeTag == "" {
		typeTag = string(domain.RelConnectsTo)
	}
	rtype, err := domain.ParseRelationType(typeTag)
	if err != nil {
		return Relationship{}, err
	}

	r := Relationship{SourceID: src, TargetID: dst, Type: rtype}
	if props, ok := m["properties"].(map[string]any); ok {
		r.Properties = props
	}
	return r, nil
}

func pointFromRaw(v any) (*Position, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("position is %T, not an object", v)
	}
	x, err := asFloat(m["x"])
	if err != nil {
		return nil, fmt.Errorf("position.x: %w", err)
	}
	y, err := asFloat(m["y"])
	if err != nil {
		return nil, fmt.Errorf("position.y: %w", err)
	}
	return &Position{X: x, Y: y}, nil
}

func extentFromRaw(v any) (*Dimensions, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dimensions is %T, not an object", v)
	}
	w, err := asFloat(m["width"])
	if err != nil {
		return nil, fmt.Errorf("dimensions.width: %w", err)
	}
	h, err := asFloat(m["height"])
	if err != nil {
		return nil, fmt.Errorf("dimensions.height: %w", err)
	}
	return &Dimensions{Width: w, Height: h}, nil
}

// asFloat accepts the numeric shapes encoding/json produces. A missing key
// defaults to zero.
func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value is %T, not a number", v)
	}
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
