package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/docstore"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/store"

	"golang.org/x/sync/errgroup"
)

// ErrNoFilmNodes is returned when a relationship pass runs against a graph
// without Film nodes.
var ErrNoFilmNodes = fmt.Errorf("%w: no Film nodes, run the films pass first", common.ErrNodeMissing)

// RunOptions selects what a run does.
type RunOptions struct {
	// Passes defaults to DefaultPasses.
	Passes []Pass
	// OnPass is called after every successful pass.
	OnPass func(PassReport)
}

// Run executes the selected passes in order. Every pass is an idempotent
// upsert, so a failed run leaves a valid partial graph and re-running from
// the start converges to the same graph.
func (m *Materializer) Run(
	ctx context.Context,
	docs docstore.Store,
	storage store.GraphStorage,
	opts RunOptions,
) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	passes := opts.Passes
	if len(passes) == 0 {
		passes = DefaultPasses
	}

	logger.Info("[Materialize] Starting", "passes", fmt.Sprint(passes))

	if err := storage.EnsureConstraints(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure constraints: %w", err)
	}

	before, err := storage.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count graph: %w", err)
	}
	report := &Report{Before: before}

	for _, pass := range passes {
		if pass.needsFilms() {
			counts, err := storage.Counts(ctx)
			if err != nil {
				return report, fmt.Errorf("failed to count graph: %w", err)
			}
			if counts.Nodes[common.FilmLabel] == 0 {
				return report, fmt.Errorf("%s pass: %w", pass, ErrNoFilmNodes)
			}
		}

		start := time.Now()
		pr := PassReport{Pass: pass, Counts: map[string]int64{}}

		switch pass {
		case PassFilms:
			err = m.materializeFilms(ctx, docs, storage, &pr)
		case PassEntities:
			err = m.materializeEntities(ctx, docs, storage, &pr)
		case PassRelationships:
			err = m.materializeRelationships(ctx, docs, storage, &pr)
		case PassDerived:
			err = m.materializeDerived(ctx, storage, &pr)
		default:
			err = fmt.Errorf("unknown pass %q", pass)
		}
		pr.Duration = time.Since(start)
		if err != nil {
			return report, fmt.Errorf("%s pass: %w", pass, err)
		}

		for _, n := range pr.Counts {
			pr.Written += n
		}
		report.Passes = append(report.Passes, pr)
		logger.Info("[Materialize] Pass completed", "pass", pass, "written", pr.Written, "duration", pr.Duration)
		if opts.OnPass != nil {
			opts.OnPass(pr)
		}
	}

	after, err := storage.Counts(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to count graph: %w", err)
	}
	report.After = after

	logger.Info("[Materialize] Completed",
		"nodes", after.TotalNodes(),
		"relationships", after.TotalRelationships(),
	)
	return report, nil
}

func (m *Materializer) materializeFilms(
	ctx context.Context,
	docs docstore.Store,
	storage store.GraphStorage,
	pr *PassReport,
) error {
	batch := make([]common.FilmNode, 0, m.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := storage.UpsertFilms(ctx, batch)
		if err != nil {
			return err
		}
		pr.Counts[common.FilmLabel] += int64(n)
		batch = batch[:0]
		return nil
	}

	err := docs.Stream(ctx, func(id string, film common.Film) error {
		batch = append(batch, film.Node(id))
		if len(batch) >= m.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to stream films: %w", err)
	}
	return flush()
}

// nameSet keeps distinct names in first-seen order.
type nameSet struct {
	seen  map[string]struct{}
	names []string
}

func (s *nameSet) add(names ...string) {
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	for _, n := range names {
		if _, ok := s.seen[n]; ok {
			continue
		}
		s.seen[n] = struct{}{}
		s.names = append(s.names, n)
	}
}

func (m *Materializer) materializeEntities(
	ctx context.Context,
	docs docstore.Store,
	storage store.GraphStorage,
	pr *PassReport,
) error {
	sets := make(map[common.EntityKind]*nameSet, len(common.EntityKinds))
	for _, kind := range common.EntityKinds {
		sets[kind] = &nameSet{}
	}

	err := docs.Stream(ctx, func(id string, film common.Film) error {
		for _, kind := range common.EntityKinds {
			sets[kind].add(kind.Names(film)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to stream films: %w", err)
	}

	written := make([]int64, len(common.EntityKinds))
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(m.parallelKinds)
	for i, kind := range common.EntityKinds {
		eg.Go(func() error {
			n, err := storage.UpsertEntities(gCtx, kind, sets[kind].names)
			if err != nil {
				return fmt.Errorf("failed to upsert %s nodes: %w", kind, err)
			}
			written[i] = int64(n)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, kind := range common.EntityKinds {
		pr.Counts[kind.Label()] = written[i]
	}
	return nil
}

func (m *Materializer) materializeRelationships(
	ctx context.Context,
	docs docstore.Store,
	storage store.GraphStorage,
	pr *PassReport,
) error {
	pending := make(map[common.RelationshipKind][]common.Relationship, len(common.FilmRelationshipKinds))
	var missing []error

	flush := func(kind common.RelationshipKind) error {
		rels := pending[kind]
		if len(rels) == 0 {
			return nil
		}
		n, err := storage.UpsertRelationships(ctx, kind, rels)
		pr.Counts[string(kind)] += int64(n)
		pending[kind] = rels[:0]
		if errors.Is(err, common.ErrNodeMissing) {
			missing = append(missing, err)
			return nil
		}
		return err
	}

	err := docs.Stream(ctx, func(id string, film common.Film) error {
		for _, kind := range common.FilmRelationshipKinds {
			for _, name := range kind.Entity().Names(film) {
				pending[kind] = append(pending[kind], common.Relationship{Name: name, FilmID: id})
			}
			if len(pending[kind]) >= m.batchSize {
				if err := flush(kind); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to stream films: %w", err)
	}

	for _, kind := range common.FilmRelationshipKinds {
		if err := flush(kind); err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		return errors.Join(missing...)
	}
	return nil
}

func (m *Materializer) materializeDerived(
	ctx context.Context,
	storage store.GraphStorage,
	pr *PassReport,
) error {
	for _, kind := range common.DerivedRelationshipKinds {
		n, err := storage.DeriveDirectorRelationships(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to derive %s: %w", kind, err)
		}
		pr.Counts[string(kind)] = n
	}
	return nil
}
