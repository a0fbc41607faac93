package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestStore_ExportImport(t *testing.T) {
	_, source := setupTestStore(t)
	seedStore(t, source)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := source.Export(ctx, &buf, Filter{SurveyID: "009"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 exported records, got %d", n)
	}
	archive := buf.Bytes()

	_, target := setupTestStore(t)
	added, err := target.Import(ctx, bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if added != 3 {
		t.Errorf("expected 3 imported records, got %d", added)
	}

	for _, id := range []string{"t1", "t2", "t4"} {
		want, err := source.Get(ctx, id)
		if err != nil {
			t.Fatalf("source Get(%s) error = %v", id, err)
		}
		got, err := target.Get(ctx, id)
		if err != nil {
			t.Fatalf("target Get(%s) error = %v", id, err)
		}
		if got.AddedMs != want.AddedMs || got.Digest != want.Digest || got.Invalid != want.Invalid ||
			!bytes.Equal(got.Response, want.Response) {
			t.Errorf("imported %s differs: want %+v, got %+v", id, want, got)
		}
	}
	if _, err := target.Get(ctx, "t3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected t3 to be filtered out of the export, got %v", err)
	}

	added, err = target.Import(ctx, bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if added != 0 {
		t.Errorf("expected duplicates to be skipped, got %d added", added)
	}
}

// failingWriter accepts limit writes and fails every write after that.
type failingWriter struct {
	limit  int
	writes int
}

var errWriterFull = errors.New("writer full")

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.writes >= w.limit {
		return 0, errWriterFull
	}
	w.writes++
	return len(p), nil
}

func TestStore_ExportStreams(t *testing.T) {
	_, s := setupTestStore(t)
	seedStore(t, s)

	w := &failingWriter{limit: 1}
	n, err := s.Export(context.Background(), w, Filter{})
	if !errors.Is(err, errWriterFull) {
		t.Fatalf("expected the writer error, got %v", err)
	}
	if n != 1 || w.writes != 1 {
		t.Errorf("expected one record written before the failure, got n=%d writes=%d", n, w.writes)
	}
}

func TestStore_ImportDigestMismatch(t *testing.T) {
	_, s := setupTestStore(t)
	var buf bytes.Buffer
	rec := ExportRecord{ID: "x", AddedMs: 1, Digest: "not-the-digest", Response: []byte(`{"tx_id":"x"}`)}
	if err := encMode.NewEncoder(&buf).Encode(rec); err != nil {
		t.Fatalf("failed to encode record: %v", err)
	}

	added, err := s.Import(context.Background(), &buf)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}
	if added != 0 {
		t.Errorf("expected nothing imported, got %d", added)
	}
}

func TestStore_ImportGarbage(t *testing.T) {
	_, s := setupTestStore(t)
	if _, err := s.Import(context.Background(), bytes.NewReader([]byte{0xff, 0x00, 0x13})); err == nil {
		t.Error("expected an error for malformed input, got nil")
	}
}
