// Package loader imports line-delimited JSON film datasets into the document
// store. Dataset bytes come from a FileLoader (local disk or S3).
package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/docstore"
	"github.com/filmgraph/backend/pkg/logger"
)

// DatasetFile is a dataset object to import. Path is a filesystem path or an
// object key depending on the Loader.
type DatasetFile struct {
	ID     string
	Path   string
	Loader FileLoader
}

// NewDatasetFile returns a DatasetFile read through l.
func NewDatasetFile(id, path string, l FileLoader) DatasetFile {
	return DatasetFile{ID: id, Path: path, Loader: l}
}

// GetText retrieves the raw content of the file using its Loader.
func (f *DatasetFile) GetText(ctx context.Context) ([]byte, error) {
	if f.Loader == nil {
		return nil, fmt.Errorf("dataset %s has no loader", f.Path)
	}
	return f.Loader.GetFileText(ctx, *f)
}

// FileLoader loads the contents of a DatasetFile. Implementations may load
// files from disk, cloud storage, or other sources.
type FileLoader interface {
	GetFileText(ctx context.Context, file DatasetFile) ([]byte, error)
}

// CacheKey generates a unique cache key for a DatasetFile based on its ID and path.
func CacheKey(file DatasetFile) string {
	return file.ID + ":" + file.Path
}

// LineError describes a record that could not be imported.
type LineError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Record is one decoded dataset line.
type Record struct {
	Line     int
	Film     common.Film
	Repaired bool
}

// Parse decodes a dataset. The input is either one JSON object per line or
// a single JSON array of objects. Blank lines are skipped. Lines that do not
// decode are repaired once and reported as LineErrors when repair fails.
func Parse(data []byte) ([]Record, []LineError) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			return parseItems(items)
		}
	}

	var (
		records []Record
		errs    []LineError
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			errs = append(errs, LineError{Line: line, Reason: err.Error()})
			continue
		}
		rec.Line = line
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, LineError{Line: line + 1, Reason: err.Error()})
	}
	return records, errs
}

func parseItems(items []json.RawMessage) ([]Record, []LineError) {
	var (
		records []Record
		errs    []LineError
	)
	for i, item := range items {
		rec, err := decodeRecord(item)
		if err != nil {
			errs = append(errs, LineError{Line: i + 1, Reason: err.Error()})
			continue
		}
		rec.Line = i + 1
		records = append(records, rec)
	}
	return records, errs
}

func decodeRecord(raw []byte) (Record, error) {
	var fields map[string]json.RawMessage
	err := json.Unmarshal(raw, &fields)
	repaired := false
	if err != nil {
		fixed, rerr := jsonrepair.JSONRepair(string(raw))
		if rerr != nil {
			return Record{}, fmt.Errorf("invalid json: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &fields); err != nil {
			return Record{}, fmt.Errorf("invalid json: %w", err)
		}
		repaired = true
	}
	if fields == nil {
		return Record{}, errors.New("record is not an object")
	}

	film, err := decodeFilm(canonicalFields(fields))
	if err != nil {
		return Record{}, err
	}
	return Record{Film: film, Repaired: repaired}, nil
}

// canonicalFields renames legacy keys and drops the dataset identity. A
// canonical key wins over its legacy spelling.
func canonicalFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if k == "_id" {
			continue
		}
		if canon, ok := common.LegacyFieldNames[k]; ok {
			if _, exists := fields[canon]; exists {
				continue
			}
			k = canon
		}
		out[k] = v
	}
	return out
}

func decodeFilm(fields map[string]json.RawMessage) (common.Film, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return common.Film{}, err
	}
	var film common.Film
	if err := json.Unmarshal(b, &film); err != nil {
		return common.Film{}, fmt.Errorf("invalid film: %w", err)
	}
	return film, nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	BatchSize int
}

// ImportReport summarizes an import.
type ImportReport struct {
	Source   string      `json:"source"`
	Lines    int         `json:"lines"`
	Imported int         `json:"imported"`
	Repaired int         `json:"repaired"`
	Skipped  []LineError `json:"skipped,omitempty"`
	IDs      []string    `json:"-"`
}

// Import reads file, validates every record and inserts the valid ones in
// batches. Invalid records are skipped and reported. Inserts are not retried.
func Import(ctx context.Context, file DatasetFile, docs docstore.Store, opts ImportOptions) (*ImportReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}

	data, err := file.GetText(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", file.Path, err)
	}

	records, lineErrs := Parse(data)
	report := &ImportReport{Source: file.Path, Skipped: lineErrs}
	for _, le := range lineErrs {
		logger.Warn("[Import] Skipping undecodable record", "source", file.Path, "line", le.Line, "err", le.Reason)
	}

	batch := make([]common.Film, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ids, err := docs.InsertMany(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		report.IDs = append(report.IDs, ids...)
		report.Imported += len(ids)
		batch = batch[:0]
		return nil
	}

	for _, rec := range records {
		report.Lines++
		if rec.Repaired {
			report.Repaired++
		}
		if err := common.ValidateFilm(rec.Film); err != nil {
			report.Skipped = append(report.Skipped, LineError{Line: rec.Line, Reason: err.Error()})
			logger.Warn("[Import] Skipping invalid film", "source", file.Path, "line", rec.Line, "err", err)
			continue
		}
		batch = append(batch, rec.Film)
		if len(batch) == opts.BatchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}
	report.Lines += len(lineErrs)

	logger.Info("[Import] Dataset imported",
		"source", file.Path,
		"imported", report.Imported,
		"skipped", len(report.Skipped),
		"repaired", report.Repaired,
	)
	return report, nil
}

// IsDatasetKey reports whether key looks like a dataset object name.
func IsDatasetKey(key string) bool {
	k := strings.ToLower(key)
	return strings.HasSuffix(k, ".json") || strings.HasSuffix(k, ".jsonl") || strings.HasSuffix(k, ".ndjson")
}
