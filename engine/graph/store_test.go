package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/pkg/fn"
)

type statement struct {
	cypher string
	params map[string]any
}

// fakeDB records every statement and can be scripted to fail writes or
// return canned records.
type fakeDB struct {
	statements []statement
	failWrites int
	runErr     error
	records    []*neo4j.Record
}

func (db *fakeDB) OpenSession(context.Context) CypherSession { return &fakeSession{db: db} }

type fakeSession struct{ db *fakeDB }

func (s *fakeSession) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.db.statements = append(s.db.statements, statement{cypher: cypher, params: params})
	if s.db.runErr != nil {
		return nil, s.db.runErr
	}
	return &fakeResult{records: s.db.records}, nil
}

func (s *fakeSession) ExecuteWrite(_ context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	if s.db.failWrites > 0 {
		s.db.failWrites--
		return nil, errors.New("transient deadlock")
	}
	return work(fakeRunner{s: s})
}

func (s *fakeSession) Close(context.Context) error { return nil }

type fakeRunner struct{ s *fakeSession }

func (r fakeRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return r.s.Run(ctx, cypher, params)
}

type fakeResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func (r *fakeResult) Next(context.Context) bool {
	if r.idx < len(r.records) {
		r.idx++
		return true
	}
	return false
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.idx-1] }
func (r *fakeResult) Err() error            { return r.err }

func record(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func fastStore(db *fakeDB) *Store {
	s := NewStoreWithOpener(db, nil)
	s.retry = fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}
	return s
}

func sampleGraph() SceneGraph {
	return SceneGraph{
		DiagramID: "d1",
		Title:     "Basement plumbing",
		Metadata:  map[string]string{"source_filename": "plan.png"},
		Components: []Component{
			{ID: "c1", Type: domain.ComponentPipe, Name: "Main line", Position: &Position{X: 1, Y: 2}},
			{ID: "c2", Type: domain.ComponentValve, Name: "Shutoff"},
		},
		Relationships: []Relationship{
			{SourceID: "c1", TargetID: "c2", Type: domain.RelConnectsTo, Properties: map[string]any{"distance": 2.5}},
		},
	}
}

func TestStoreWritesMergeStatements(t *testing.T) {
	db := &fakeDB{}
	if err := fastStore(db).Store(context.Background(), sampleGraph()); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// One diagram merge, two component merges, one relationship merge.
	if len(db.statements) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(db.statements))
	}
	if !strings.Contains(db.statements[0].cypher, "MERGE (d:Diagram {id: $diagram_id})") {
		t.Fatalf("first statement should merge the diagram: %q", db.statements[0].cypher)
	}
	if db.statements[0].params["diagram_id"] != "d1" {
		t.Fatalf("diagram params: %v", db.statements[0].params)
	}
	for _, st := range db.statements[1:3] {
		if !strings.Contains(st.cypher, "MERGE (c:Component {id: $id})") ||
			!strings.Contains(st.cypher, "MERGE (d)-[:CONTAINS]->(c)") {
			t.Fatalf("component statement: %q", st.cypher)
		}
	}
	rel := db.statements[3]
	if !strings.Contains(rel.cypher, "MERGE (source)-[r:CONNECTS_TO]->(target)") {
		t.Fatalf("relationship statement: %q", rel.cypher)
	}
	if rel.params["distance"] != 2.5 {
		t.Fatalf("relationship params: %v", rel.params)
	}
}

func TestStoreRetriesTransientFailure(t *testing.T) {
	db := &fakeDB{failWrites: 1}
	if err := fastStore(db).Store(context.Background(), sampleGraph()); err != nil {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
	if len(db.statements) != 4 {
		t.Fatalf("successful attempt should have run 4 statements, got %d", len(db.statements))
	}
}

func TestStoreExhaustsRetries(t *testing.T) {
	db := &fakeDB{failWrites: 3}
	err := fastStore(db).Store(context.Background(), sampleGraph())
	if !errors.Is(err, domain.ErrStoreWriteFailed) {
		t.Fatalf("expected ErrStoreWriteFailed, got %v", err)
	}
	if db.failWrites != 0 {
		t.Fatalf("expected exactly 3 attempts, %d failures unconsumed", db.failWrites)
	}
}

func TestGetDiagramInfoNotFound(t *testing.T) {
	db := &fakeDB{} // no records
	_, err := fastStore(db).GetDiagramInfo(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDiagramNotFound) {
		t.Fatalf("expected ErrDiagramNotFound, got %v", err)
	}
}

func TestGetDiagramInfo(t *testing.T) {
	db := &fakeDB{records: []*neo4j.Record{
		record(
			[]string{"id", "title", "diagram_type", "source_filename", "processing_timestamp", "scale", "floor_level", "building_zone", "created_at", "component_count"},
			[]any{"d1", "Basement plumbing", "plumbing", "plan.png", "2025-06-01T12:00:00Z", "1:50", "B1", "west", "2025-06-01T12:00:01Z", int64(12)},
		),
	}}
	info, err := fastStore(db).GetDiagramInfo(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetDiagramInfo: %v", err)
	}
	if info.ID != "d1" || info.Title != "Basement plumbing" || info.ComponentCount != 12 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.SourceFilename != "plan.png" || info.Scale != "1:50" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestGetComponents(t *testing.T) {
	keys := []string{"id", "type", "name", "material", "diameter", "length", "flow_direction", "position_x", "position_y", "width", "height"}
	db := &fakeDB{records: []*neo4j.Record{
		record(keys, []any{"c1", "pipe", "Main line", "copper", "15mm", "", "north", 1.0, 2.0, 3.0, 4.0}),
	}}
	comps, err := fastStore(db).GetComponents(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetComponents: %v", err)
	}
	if len(comps) != 1 {
		t.Fatalf("expected 1 component, got %d", len(comps))
	}
	c := comps[0]
	if c.ID != "c1" || c.Type != domain.ComponentPipe || c.Name != "Main line" {
		t.Fatalf("unexpected component: %+v", c)
	}
	if c.Properties["material"] != "copper" {
		t.Fatalf("unexpected properties: %v", c.Properties)
	}
	if _, ok := c.Properties["length"]; ok {
		t.Fatal("empty property values should be dropped")
	}
	if c.Position == nil || c.Position.X != 1.0 || c.Dimensions == nil || c.Dimensions.Height != 4.0 {
		t.Fatalf("unexpected geometry: %+v %+v", c.Position, c.Dimensions)
	}
}

func TestGetRelationshipsFiltersVocabulary(t *testing.T) {
	keys := []string{"source_id", "target_id", "type", "distance", "angle"}
	db := &fakeDB{records: []*neo4j.Record{
		record(keys, []any{"c1", "c2", "CONNECTS_TO", 2.5, nil}),
		record(keys, []any{"c2", "c3", "SOMETHING_ELSE", nil, nil}),
	}}
	rels, err := fastStore(db).GetRelationships(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}

	// Query must restrict to the known vocabulary.
	types, ok := db.statements[0].params["types"].([]any)
	if !ok || len(types) != 7 {
		t.Fatalf("expected 7 relationship types in query params, got %v", db.statements[0].params["types"])
	}

	// The unknown type in the second record is dropped on read.
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	r := rels[0]
	if r.Type != domain.RelConnectsTo || r.Properties["distance"] != 2.5 {
		t.Fatalf("unexpected relationship: %+v", r)
	}
	if _, ok := r.Properties["angle"]; ok {
		t.Fatal("nil edge properties should be dropped")
	}
}

func TestEnsureSchemaContinuesOnFailure(t *testing.T) {
	db := &fakeDB{runErr: errors.New("no admin rights")}
	fastStore(db).EnsureSchema(context.Background())
	if len(db.statements) != 4 {
		t.Fatalf("all schema statements should be attempted, got %d", len(db.statements))
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := &fakeDB{records: []*neo4j.Record{record([]string{"ok"}, []any{int64(1)})}}
	if !fastStore(healthy).HealthCheck(context.Background()) {
		t.Fatal("expected healthy")
	}

	down := &fakeDB{runErr: errors.New("connection refused")}
	if fastStore(down).HealthCheck(context.Background()) {
		t.Fatal("expected unhealthy on query error")
	}

	empty := &fakeDB{}
	if fastStore(empty).HealthCheck(context.Background()) {
		t.Fatal("expected unhealthy on empty result")
	}
}
