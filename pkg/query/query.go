package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/docstore"
	"github.com/filmgraph/backend/pkg/graphstore"
	"github.com/filmgraph/backend/pkg/logger"
)

// Adapter names the store an entry reads from.
type Adapter string

const (
	AdapterDocument Adapter = "document"
	AdapterGraph    Adapter = "graph"
)

// Kind is the shape of a result.
type Kind string

const (
	KindScalar  Kind = "scalar"
	KindRecords Kind = "records"
	KindSeries  Kind = "series"
	KindPath    Kind = "path"
	KindGroups  Kind = "groups"
)

// ParamType is the type a parameter value must parse as.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
)

// Param is a named entry parameter with its default.
type Param struct {
	Name    string    `json:"name"`
	Type    ParamType `json:"type"`
	Default string    `json:"default"`
}

// Entry is one analytical question of the catalog.
type Entry struct {
	Name     string  `json:"name"`
	Question string  `json:"question"`
	Adapter  Adapter `json:"adapter"`
	TieBreak string  `json:"tie_break,omitempty"`
	// OnEmpty is the message of a result whose precondition set is empty.
	// It may reference parameters as {name}.
	OnEmpty string  `json:"on_empty"`
	Params  []Param `json:"params,omitempty"`
	Kind    Kind    `json:"kind"`
	// Shape is a zero value of the row type, used for schema generation.
	Shape any `json:"-"`

	run func(ctx context.Context, env *env, p Params) (*Result, error)
}

// Point is one element of a series.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result is the outcome of running an entry.
type Result struct {
	Query   string            `json:"query"`
	Kind    Kind              `json:"kind"`
	Empty   bool              `json:"empty"`
	Message string            `json:"message,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Value   any               `json:"value,omitempty"`
	Rows    any               `json:"rows,omitempty"`
	Series  []Point           `json:"series,omitempty"`
	Path    []PathStep        `json:"path,omitempty"`
	Groups  []Community       `json:"groups,omitempty"`
}

// Params holds validated parameter values by name.
type Params map[string]string

func (p Params) String(name string) string {
	return p[name]
}

// Int returns the parsed value; values are validated before an entry runs.
func (p Params) Int(name string) int64 {
	v, _ := strconv.ParseInt(p[name], 10, 64)
	return v
}

func (p Params) Float(name string) float64 {
	v, _ := strconv.ParseFloat(p[name], 64)
	return v
}

// Catalog is a registry of entries bound to the stores they read from.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	env     *env
}

type env struct {
	docs   docstore.Store
	graph  graphstore.Runner
	retry  util.RetryPolicy
	tracer Tracer
}

type CatalogOption func(*Catalog)

func WithTracer(t Tracer) CatalogOption {
	return func(c *Catalog) {
		c.env.tracer = t
	}
}

func WithRetryPolicy(p util.RetryPolicy) CatalogOption {
	return func(c *Catalog) {
		c.env.retry = p
	}
}

// NewCatalog returns a catalog with every built-in entry registered. Either
// store may be nil; entries reading from a missing store fail at run time.
func NewCatalog(docs docstore.Store, graph graphstore.Runner, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		entries: map[string]*Entry{},
		env: &env{
			docs:  docs,
			graph: graph,
			retry: util.DefaultRetryPolicy(),
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	for _, e := range aggregationEntries() {
		c.Register(e)
	}
	for _, e := range traversalEntries() {
		c.Register(e)
	}
	return c
}

// Register adds or replaces an entry.
func (c *Catalog) Register(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Name] = e
}

func (c *Catalog) Get(name string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

// List returns the entries sorted by adapter then name.
func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Adapter != out[j].Adapter {
			return out[i].Adapter < out[j].Adapter
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ErrUnknownQuery is returned by Run for names not in the catalog.
var ErrUnknownQuery = errors.New("unknown query")

// Run executes an entry. Empty precondition sets produce a Result with Empty
// set instead of an error.
func (c *Catalog) Run(ctx context.Context, name string, params map[string]string) (*Result, error) {
	e, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}
	p, err := e.resolveParams(params)
	if err != nil {
		return nil, err
	}
	switch {
	case e.Adapter == AdapterDocument && c.env.docs == nil:
		return nil, fmt.Errorf("query %s: document store not configured", name)
	case e.Adapter == AdapterGraph && c.env.graph == nil:
		return nil, fmt.Errorf("query %s: graph store not configured", name)
	}

	start := time.Now()
	res, err := e.run(ctx, c.env, p)
	RecordQueryRun(tracerFrom(ctx, c.env.tracer), name, time.Since(start), err)

	if errors.Is(err, common.ErrEmptyResult) {
		logger.Debug("[Query] Empty result", "query", name)
		return &Result{
			Query:   name,
			Kind:    e.Kind,
			Empty:   true,
			Message: e.emptyMessage(p),
			Params:  p,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	res.Query = name
	res.Kind = e.Kind
	res.Params = p
	return res, nil
}

func (e *Entry) resolveParams(in map[string]string) (Params, error) {
	out := make(Params, len(e.Params))
	known := make(map[string]Param, len(e.Params))
	for _, p := range e.Params {
		known[p.Name] = p
		out[p.Name] = p.Default
	}

	verr := &common.ValidationError{Fields: map[string]string{}}
	for k, v := range in {
		p, ok := known[k]
		if !ok {
			verr.Fields[k] = "unknown parameter"
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch p.Type {
		case ParamInt:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				verr.Fields[k] = "must be an integer"
				continue
			}
		case ParamFloat:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				verr.Fields[k] = "must be a number"
				continue
			}
		}
		out[k] = v
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

func (e *Entry) emptyMessage(p Params) string {
	msg := e.OnEmpty
	for k, v := range p {
		msg = strings.ReplaceAll(msg, "{"+k+"}", v)
	}
	return msg
}

func (v *env) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.Raw, error) {
	start := time.Now()
	rows, err := util.RetryWithContext(ctx, v.retry, func(ctx context.Context) ([]bson.Raw, error) {
		return v.docs.Aggregate(ctx, pipeline)
	})
	RecordStatement(tracerFrom(ctx, v.tracer), AdapterDocument, fmt.Sprint(pipeline), len(rows), time.Since(start), err)
	return rows, err
}

func (v *env) read(ctx context.Context, query string, params map[string]any) ([]graphstore.Record, error) {
	start := time.Now()
	recs, err := util.RetryWithContext(ctx, v.retry, func(ctx context.Context) ([]graphstore.Record, error) {
		return v.graph.Read(ctx, query, params)
	})
	RecordStatement(tracerFrom(ctx, v.tracer), AdapterGraph, query, len(recs), time.Since(start), err)
	return recs, err
}

// decodeRows unmarshals aggregation rows into T.
func decodeRows[T any](rows []bson.Raw) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := bson.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func scalar(v any) *Result {
	return &Result{Value: v}
}

func records(rows any) *Result {
	return &Result{Rows: rows}
}
