// Package films is the CRUD surface over the film document store. Input is
// validated before any store call.
package films

import (
	"context"
	"fmt"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/docstore"
	"github.com/filmgraph/backend/pkg/logger"
)

// Service wraps a docstore.Store. Only idempotent calls are retried.
type Service struct {
	docs  docstore.Store
	retry util.RetryPolicy
}

type Option func(*Service)

func WithRetryPolicy(p util.RetryPolicy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

func NewService(docs docstore.Store, opts ...Option) *Service {
	s := &Service{docs: docs, retry: util.DefaultRetryPolicy()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Film is a stored film with its id.
type Film struct {
	ID string `json:"id"`
	common.Film
}

// List returns up to limit films in natural order. A limit <= 0 returns all.
func (s *Service) List(ctx context.Context, limit int) ([]Film, error) {
	ids, films, err := util.Retry2WithContext(ctx, s.retry, func(ctx context.Context) ([]string, []common.Film, error) {
		return s.docs.List(ctx, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list films: %w", err)
	}

	out := make([]Film, len(ids))
	for i := range ids {
		out[i] = Film{ID: ids[i], Film: films[i]}
	}
	return out, nil
}

// Get returns common.ErrNotFound when no film has the id.
func (s *Service) Get(ctx context.Context, id string) (*Film, error) {
	f, err := util.RetryWithContext(ctx, s.retry, func(ctx context.Context) (*common.Film, error) {
		return s.docs.FindByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get film %s: %w", id, err)
	}
	return &Film{ID: id, Film: *f}, nil
}

func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := util.RetryWithContext(ctx, s.retry, func(ctx context.Context) (bool, error) {
		return s.docs.Exists(ctx, id)
	})
	if err != nil {
		return false, fmt.Errorf("failed to check film %s: %w", id, err)
	}
	return ok, nil
}

// Create validates and inserts a film. Inserts are not idempotent and are
// never retried.
func (s *Service) Create(ctx context.Context, film common.Film) (string, error) {
	if err := common.ValidateFilm(film); err != nil {
		return "", err
	}
	film.ApplyDefaults()

	id, err := s.docs.Insert(ctx, film)
	if err != nil {
		return "", fmt.Errorf("failed to create film: %w", err)
	}
	logger.Debug("[Films] Created", "id", id, "title", film.Title)
	return id, nil
}

// Update applies patch and returns the number of matched films; 0 means no
// film has the id and nothing changed.
func (s *Service) Update(ctx context.Context, id string, patch common.FilmPatch) (int64, error) {
	if err := common.ValidatePatch(patch); err != nil {
		return 0, err
	}

	n, err := util.RetryWithContext(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return s.docs.Update(ctx, id, patch)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update film %s: %w", id, err)
	}
	logger.Debug("[Films] Updated", "id", id, "matched", n)
	return n, nil
}

// Delete removes a film. A missing film yields common.DeleteNotFound and no
// deletion is attempted. Deletes are never retried.
func (s *Service) Delete(ctx context.Context, id string) (common.DeleteOutcome, error) {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if !exists {
		return common.DeleteNotFound, nil
	}

	out, err := s.docs.Delete(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to delete film %s: %w", id, err)
	}
	logger.Debug("[Films] Deleted", "id", id, "outcome", out)
	return out, nil
}
