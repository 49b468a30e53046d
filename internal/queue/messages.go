package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaterializeMsg requests a materialization run. Passes uses the same
// comma-separated syntax as the CLI flag; empty selects the default passes.
type MaterializeMsg struct {
	RequestID   string `json:"request_id"`
	Passes      string `json:"passes,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// ImportSource tells the worker where an import dataset lives.
type ImportSource string

const (
	ImportSourceS3   ImportSource = "s3"
	ImportSourceFile ImportSource = "file"
)

// ImportMsg requests the import of a dataset. With Materialize set, a
// materialization is enqueued once the import succeeded.
type ImportMsg struct {
	RequestID   string       `json:"request_id"`
	Source      ImportSource `json:"source"`
	Key         string       `json:"key"`
	BatchSize   int          `json:"batch_size,omitempty"`
	Materialize bool         `json:"materialize,omitempty"`
	RequestedBy string       `json:"requested_by,omitempty"`
}

// FinishedEvent is published on the topic exchange after a job completed.
type FinishedEvent struct {
	RequestID string `json:"request_id"`
	RunID     string `json:"run_id,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func decode[T any](body []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}

func (m ImportMsg) validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return fmt.Errorf("import message %s has no key", m.RequestID)
	}
	switch m.Source {
	case ImportSourceS3, ImportSourceFile:
		return nil
	}
	return fmt.Errorf("import message %s has unknown source %q", m.RequestID, m.Source)
}
