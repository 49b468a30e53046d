package io

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/filmgraph/backend/pkg/loader"
)

func TestIOFileLoader_Caches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "films.json")
	if err := os.WriteFile(path, []byte(`{"title":"A"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewIOFileLoader()
	file := loader.NewDatasetFile("films", path, l)

	first, err := file.GetText(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	second, err := file.GetText(context.Background())
	if err != nil {
		t.Fatalf("expected cached read, got %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("cache mismatch: %q vs %q", first, second)
	}
}

func TestIOFileLoader_Missing(t *testing.T) {
	l := NewIOFileLoader()
	file := loader.NewDatasetFile("films", filepath.Join(t.TempDir(), "missing.json"), l)
	if _, err := file.GetText(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
