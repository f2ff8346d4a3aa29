package semantic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/PlanSightAI/plansight-mvp/engine/graph"
)

// EmbedDims is the vector width of text-embedding-3-small.
const EmbedDims = 1536

// Index is the sole owner of all Qdrant operations. Point ids are derived
// deterministically from diagram and component ids, so re-indexing a
// diagram overwrites its previous points.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	embedder    Embedder
	logger      *slog.Logger
}

// New creates an Index connected to Qdrant at the given gRPC address.
func New(addr, collection string, embedder Embedder, logger *slog.Logger) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		embedder:    embedder,
		logger:      logger,
	}, nil
}

// Close closes the underlying gRPC connection.
func (x *Index) Close() error {
	return x.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (x *Index) EnsureCollection(ctx context.Context) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(EmbedDims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", x.collection, err)
	}
	return nil
}

// IndexGraph embeds every component of a scene graph and upserts the
// vectors. Components are described by name and type.
func (x *Index) IndexGraph(ctx context.Context, g graph.SceneGraph) error {
	if len(g.Components) == 0 {
		return nil
	}

	texts := make([]string, len(g.Components))
	for i, c := range g.Components {
		texts[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}
	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("semantic: embed %d components: %w", len(texts), err)
	}
	if len(vectors) != len(g.Components) {
		return fmt.Errorf("semantic: embedder returned %d vectors for %d components", len(vectors), len(g.Components))
	}

	points := make([]*pb.PointStruct, len(g.Components))
	for i, c := range g.Components {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(g.DiagramID, c.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: map[string]*pb.Value{
				"diagram_id":   {Kind: &pb.Value_StringValue{StringValue: g.DiagramID}},
				"component_id": {Kind: &pb.Value_StringValue{StringValue: c.ID}},
				"name":         {Kind: &pb.Value_StringValue{StringValue: c.Name}},
				"type":         {Kind: &pb.Value_StringValue{StringValue: string(c.Type)}},
			},
		}
	}

	wait := true
	_, err = x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}

	x.logger.Info("semantic: components indexed", "diagram_id", g.DiagramID, "points", len(points))
	return nil
}

// DeleteDiagram removes all points of a diagram. Used for re-ingestion.
func (x *Index) DeleteDiagram(ctx context.Context, diagramID string) error {
	wait := true
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("diagram_id", diagramID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete diagram %s: %w", diagramID, err)
	}
	return nil
}

// Focus embeds a question and returns the diagram's components most
// similar to it.
func (x *Index) Focus(ctx context.Context, question, diagramID string, topK int) ([]Hit, error) {
	vectors, err := x.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("semantic: embed question: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("semantic: embedder returned no vector for question")
	}

	req := &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vectors[0],
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				fieldMatch("diagram_id", diagramID),
			},
		},
	}

	resp, err := x.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		h := Hit{Score: r.GetScore()}
		for k, val := range r.GetPayload() {
			s := val.GetStringValue()
			switch k {
			case "component_id":
				h.ComponentID = s
			case "diagram_id":
				h.DiagramID = s
			case "name":
				h.Name = s
			case "type":
				h.Type = s
			}
		}
		hits[i] = h
	}
	return hits, nil
}

// pointID derives a stable point id from the diagram and component ids.
func pointID(diagramID, componentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(diagramID+"/"+componentID)).String()
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
