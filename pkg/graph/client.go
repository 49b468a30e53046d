package graph

import (
	"sync"
)

// Materializer derives the film graph from the document store.
//
// Runs are serialized per Materializer: a second Run blocks until the first
// one returns. Cross-process exclusion is the caller's job (see
// pkg/leaselock).
//
// A Materializer should be created using NewMaterializer.
type Materializer struct {
	batchSize     int
	parallelKinds int

	mu sync.Mutex
}

// NewMaterializerParams configures a Materializer.
//
// BatchSize is the number of films buffered before their rows are flushed to
// the graph store. ParallelKinds bounds how many entity kinds are upserted
// concurrently.
type NewMaterializerParams struct {
	BatchSize     int
	ParallelKinds int
}

// NewMaterializer creates a Materializer.
//
// Example:
//
//	m, err := graph.NewMaterializer(graph.NewMaterializerParams{
//		BatchSize:     500,
//		ParallelKinds: 3,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	report, err := m.Run(ctx, docs, cypher.NewGraphStorage(neo), graph.RunOptions{})
func NewMaterializer(params NewMaterializerParams) (*Materializer, error) {
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	parallel := params.ParallelKinds
	if parallel <= 0 {
		parallel = 3
	}
	return &Materializer{
		batchSize:     batchSize,
		parallelKinds: parallel,
	}, nil
}
