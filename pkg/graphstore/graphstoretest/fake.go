// Package graphstoretest provides a scripted graphstore.Store for tests.
package graphstoretest

import (
	"context"
	"strings"
	"sync"

	"github.com/filmgraph/backend/pkg/graphstore"
)

// Call is one statement received by the fake.
type Call struct {
	Query  string
	Params map[string]any
	Read   bool
}

// Fake answers statements with Handler. Without a handler every statement
// returns no records.
type Fake struct {
	mu      sync.Mutex
	Calls   []Call
	Handler func(call Call) ([]graphstore.Record, error)
}

func (f *Fake) Run(ctx context.Context, query string, params map[string]any) ([]graphstore.Record, error) {
	return f.handle(Call{Query: query, Params: params})
}

func (f *Fake) Read(ctx context.Context, query string, params map[string]any) ([]graphstore.Record, error) {
	return f.handle(Call{Query: query, Params: params, Read: true})
}

func (f *Fake) Close(ctx context.Context) error {
	return nil
}

func (f *Fake) handle(call Call) ([]graphstore.Record, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	h := f.Handler
	f.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(call)
}

// Matching returns the calls whose statement contains substr.
func (f *Fake) Matching(substr string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if strings.Contains(c.Query, substr) {
			out = append(out, c)
		}
	}
	return out
}
