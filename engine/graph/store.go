package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/pkg/fn"
	"github.com/PlanSightAI/plansight-mvp/pkg/metrics"
)

// CypherResult is the subset of the driver's result surface the store reads.
type CypherResult interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// CypherRunner runs one statement inside a transaction.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// CypherSession is the session surface the store depends on. Tests satisfy
// it with in-memory fakes.
type CypherSession interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener opens sessions against the backing database.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

// Store persists scene graphs to Neo4j and reconstructs them for querying.
// Every node and edge write is a MERGE, so storing the same graph twice
// leaves the database unchanged.
type Store struct {
	opener  SessionOpener
	retry   fn.RetryOpts
	logger  *slog.Logger
	metrics *metrics.Registry
}

// NewStore creates a Store backed by a Neo4j driver.
func NewStore(driver neo4j.DriverWithContext, logger *slog.Logger) *Store {
	return NewStoreWithOpener(driverOpener{driver: driver}, logger)
}

// NewStoreWithOpener creates a Store with a custom session opener.
func NewStoreWithOpener(opener SessionOpener, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{opener: opener, retry: fn.DefaultRetry, logger: logger}
}

// WithMetrics attaches a metrics registry for retry accounting.
func (s *Store) WithMetrics(reg *metrics.Registry) *Store {
	s.metrics = reg
	return s
}

// Store writes a scene graph in a single write transaction per attempt,
// retrying transient failures with a doubling backoff. Exhausting the
// attempts yields an error wrapping domain.ErrStoreWriteFailed.
func (s *Store) Store(ctx context.Context, g SceneGraph) error {
	attempt := 0
	res := fn.Retry(ctx, s.retry, func(ctx context.Context) fn.Result[struct{}] {
		attempt++
		if err := s.storeOnce(ctx, g); err != nil {
			s.logger.Warn("graph: store attempt failed",
				"diagram_id", g.DiagramID, "attempt", attempt, "error", err)
			if s.metrics != nil {
				s.metrics.Counter("plansight_store_retries_total", "Scene graph store attempts that failed.").Inc()
			}
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	if _, err := res.Unwrap(); err != nil {
		return fmt.Errorf("%w after %d attempts: %v", domain.ErrStoreWriteFailed, attempt, err)
	}

	s.logger.Info("graph: scene graph stored",
		"diagram_id", g.DiagramID,
		"components", len(g.Components),
		"relationships", len(g.Relationships),
	)
	return nil
}

func (s *Store) storeOnce(ctx context.Context, g SceneGraph) error {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		cypher := `MERGE (d:Diagram {id: $diagram_id})
		           SET d.title = $title,
		               d.diagram_type = $diagram_type,
		               d.source_filename = $source_filename,
		               d.processing_timestamp = $processing_timestamp,
		               d.scale = $scale,
		               d.building_zone = $building_zone,
		               d.floor_level = $floor_level,
		               d.created_at = coalesce(d.created_at, datetime())`
		if _, err := tx.Run(ctx, cypher, diagramWriteParams(g)); err != nil {
			return nil, fmt.Errorf("merge diagram: %w", err)
		}

		for _, c := range g.Components {
			cypher := `MERGE (c:Component {id: $id})
			           SET c.type = $type,
			               c.name = $name,
			               c.material = $material,
			               c.diameter = $diameter,
			               c.length = $length,
			               c.flow_direction = $flow_direction,
			               c.position_x = $pos_x,
			               c.position_y = $pos_y,
			               c.width = $width,
			               c.height = $height
			           WITH c
			           MATCH (d:Diagram {id: $diagram_id})
			           MERGE (d)-[:CONTAINS]->(c)`
			if _, err := tx.Run(ctx, cypher, componentWriteParams(g.DiagramID, c)); err != nil {
				return nil, fmt.Errorf("merge component %s: %w", c.ID, err)
			}
		}

		for _, r := range g.Relationships {
			cypher := fmt.Sprintf(`MATCH (source:Component {id: $source_id})
			           MATCH (target:Component {id: $target_id})
			           MERGE (source)-[r:%s]->(target)
			           SET r.distance = $distance,
			               r.angle = $angle`, sanitizeRelType(string(r.Type)))
			if _, err := tx.Run(ctx, cypher, relationshipWriteParams(r)); err != nil {
				return nil, fmt.Errorf("merge relationship %s->%s: %w", r.SourceID, r.TargetID, err)
			}
		}
		return nil, nil
	})
	return err
}

// GetDiagramInfo returns the stored projection of one diagram, or
// domain.ErrDiagramNotFound.
func (s *Store) GetDiagramInfo(ctx context.Context, diagramID string) (DiagramInfo, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Diagram {id: $diagram_id})
	           OPTIONAL MATCH (d)-[:CONTAINS]->(c:Component)
	           RETURN d.id AS id, d.title AS title,
	                  d.diagram_type AS diagram_type,
	                  d.source_filename AS source_filename,
	                  d.processing_timestamp AS processing_timestamp,
	                  d.scale AS scale,
	                  d.floor_level AS floor_level,
	                  d.building_zone AS building_zone,
	                  toString(d.created_at) AS created_at,
	                  count(c) AS component_count`
	result, err := sess.Run(ctx, cypher, map[string]any{"diagram_id": diagramID})
	if err != nil {
		return DiagramInfo{}, fmt.Errorf("graph: get diagram info: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return DiagramInfo{}, fmt.Errorf("graph: get diagram info: %w", err)
		}
		return DiagramInfo{}, fmt.Errorf("%w: %s", domain.ErrDiagramNotFound, diagramID)
	}
	return diagramInfoFromRecord(result.Record()), nil
}

// GetAllDiagrams lists every stored diagram, most recently created first.
func (s *Store) GetAllDiagrams(ctx context.Context) ([]DiagramInfo, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Diagram)
	           OPTIONAL MATCH (d)-[:CONTAINS]->(c:Component)
	           WITH d, count(c) AS component_count
	           ORDER BY d.created_at DESC
	           RETURN d.id AS id, d.title AS title,
	                  d.diagram_type AS diagram_type,
	                  d.source_filename AS source_filename,
	                  toString(d.created_at) AS created_at,
	                  component_count`
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: list diagrams: %w", err)
	}

	var infos []DiagramInfo
	for result.Next(ctx) {
		infos = append(infos, diagramInfoFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: list diagrams: %w", err)
	}
	return infos, nil
}

// GetComponents returns every component contained in a diagram.
func (s *Store) GetComponents(ctx context.Context, diagramID string) ([]Component, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Diagram {id: $diagram_id})-[:CONTAINS]->(c:Component)
	           RETURN c.id AS id, c.type AS type, c.name AS name,
	                  c.material AS material, c.diameter AS diameter,
	                  c.length AS length, c.flow_direction AS flow_direction,
	                  c.position_x AS position_x, c.position_y AS position_y,
	                  c.width AS width, c.height AS height`
	result, err := sess.Run(ctx, cypher, map[string]any{"diagram_id": diagramID})
	if err != nil {
		return nil, fmt.Errorf("graph: get components: %w", err)
	}

	var comps []Component
	for result.Next(ctx) {
		comps = append(comps, componentFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: get components: %w", err)
	}
	return comps, nil
}

// GetRelationships returns the typed edges between components of a diagram.
// Only the known relationship vocabulary is matched; CONTAINS and any
// foreign edge types are excluded.
func (s *Store) GetRelationships(ctx context.Context, diagramID string) ([]Relationship, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	types := make([]any, 0, len(domain.RelationTypes()))
	for _, t := range domain.RelationTypes() {
		types = append(types, string(t))
	}

	cypher := `MATCH (d:Diagram {id: $diagram_id})-[:CONTAINS]->(c1:Component)
	           MATCH (d)-[:CONTAINS]->(c2:Component)
	           MATCH (c1)-[r]->(c2)
	           WHERE type(r) IN $types
	           RETURN c1.id AS source_id, c2.id AS target_id, type(r) AS type,
	                  r.distance AS distance, r.angle AS angle`
	result, err := sess.Run(ctx, cypher, map[string]any{"diagram_id": diagramID, "types": types})
	if err != nil {
		return nil, fmt.Errorf("graph: get relationships: %w", err)
	}

	var rels []Relationship
	for result.Next(ctx) {
		rec := result.Record()
		rtype, err := domain.ParseRelationType(strVal(rec, "type"))
		if err != nil {
			continue
		}
		r := Relationship{
			SourceID: strVal(rec, "source_id"),
			TargetID: strVal(rec, "target_id"),
			Type:     rtype,
		}
		props := map[string]any{}
		for _, key := range []string{"distance", "angle"} {
			if v, ok := rec.Get(key); ok && v != nil && v != "" {
				props[key] = v
			}
		}
		if len(props) > 0 {
			r.Properties = props
		}
		rels = append(rels, r)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: get relationships: %w", err)
	}
	return rels, nil
}

// EnsureSchema creates the uniqueness constraints and indexes the store
// relies on. Individual statement failures are logged and skipped so a
// partially provisioned database does not block startup.
func (s *Store) EnsureSchema(ctx context.Context) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT diagram_id IF NOT EXISTS FOR (d:Diagram) REQUIRE d.id IS UNIQUE",
		"CREATE CONSTRAINT component_id IF NOT EXISTS FOR (c:Component) REQUIRE c.id IS UNIQUE",
		"CREATE INDEX component_type IF NOT EXISTS FOR (c:Component) ON (c.type)",
		"CREATE INDEX diagram_title IF NOT EXISTS FOR (d:Diagram) ON (d.title)",
	}
	for _, stmt := range statements {
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			s.logger.Warn("graph: schema statement failed", "error", err)
		}
	}
}

// HealthCheck reports whether the database answers a trivial query. It
// fails closed: any error means unhealthy.
func (s *Store) HealthCheck(ctx context.Context) bool {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, "RETURN 1 AS ok", nil)
	if err != nil {
		s.logger.Warn("graph: health check failed", "error", err)
		return false
	}
	if !result.Next(ctx) {
		return false
	}
	return result.Err() == nil
}

func diagramInfoFromRecord(rec *neo4j.Record) DiagramInfo {
	return DiagramInfo{
		ID:                  strVal(rec, "id"),
		Title:               strVal(rec, "title"),
		DiagramType:         strVal(rec, "diagram_type"),
		SourceFilename:      strVal(rec, "source_filename"),
		ProcessingTimestamp: strVal(rec, "processing_timestamp"),
		Scale:               strVal(rec, "scale"),
		FloorLevel:          strVal(rec, "floor_level"),
		BuildingZone:        strVal(rec, "building_zone"),
		CreatedAt:           strVal(rec, "created_at"),
		ComponentCount:      intVal(rec, "component_count"),
	}
}

// driverOpener adapts the Neo4j driver to SessionOpener.
type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	result, err := s.sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return driverResult{result: result}, nil
}

func (s driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

func (s driverSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (r txRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	result, err := r.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return driverResult{result: result}, nil
}

type driverResult struct {
	result neo4j.ResultWithContext
}

func (r driverResult) Next(ctx context.Context) bool { return r.result.Next(ctx) }
func (r driverResult) Record() *neo4j.Record         { return r.result.Record() }
func (r driverResult) Err() error                    { return r.result.Err() }
