package ingest

import "github.com/PlanSightAI/plansight-mvp/engine/docproc"

// Upload is an incoming diagram file. Small files carry their payload
// inline; larger ones are staged in the object store and referenced by
// key.
type Upload struct {
	Filename  string `json:"filename"`
	Data      []byte `json:"data,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}

// Normalized pairs the normalized document with its source filename,
// which later stages stamp into the scene graph.
type Normalized struct {
	Filename string
	Doc      docproc.Document
}

// Extracted carries the raw candidate graph produced by the vision model.
type Extracted struct {
	Filename string
	Raw      map[string]any
}

// IngestedEvent announces a successfully stored diagram.
type IngestedEvent struct {
	DiagramID      string `json:"diagram_id"`
	Title          string `json:"title"`
	SourceFilename string `json:"source_filename"`
	Components     int    `json:"components"`
	Relationships  int    `json:"relationships"`
}
