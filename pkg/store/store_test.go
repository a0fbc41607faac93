package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// stepClock returns a clock that advances one second on every call,
// starting one second after baseTime.
func stepClock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return baseTime.Add(time.Duration(n) * time.Second)
	}
}

func addedMsAt(step int) int64 {
	return baseTime.Add(time.Duration(step) * time.Second).UnixMilli()
}

// setupTestStore creates a Store over a fresh SQLite database file. It uses
// t.Cleanup to ensure resources are released.
func setupTestStore(tb testing.TB, opts ...Option) (*sql.DB, *Store) {
	tb.Helper()
	dbFile := filepath.Join(tb.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		tb.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db, append([]Option{WithClock(stepClock())}, opts...)...)
	if err != nil {
		tb.Fatalf("NewStore() error = %v", err)
	}
	tb.Cleanup(s.Close)
	return db, s
}

// surveyResponse builds a response document shaped like a submitted survey.
func surveyResponse(tb testing.TB, txID, surveyID, ruRef, period string, invalid bool, comment string) []byte {
	tb.Helper()
	doc := map[string]any{
		"tx_id":     txID,
		"survey_id": surveyID,
		"metadata":  map[string]any{"ru_ref": ruRef, "user_id": "u"},
		"collection": map[string]any{
			"period":        period,
			"instrument_id": "0001",
		},
		"invalid": invalid,
		"data":    map[string]any{"146": comment},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		tb.Fatalf("failed to marshal response: %v", err)
	}
	return data
}

func mustAdd(tb testing.TB, s *Store, data []byte) Record {
	tb.Helper()
	rec, err := s.Add(context.Background(), data)
	if err != nil {
		tb.Fatalf("Add() error = %v", err)
	}
	return rec
}

func TestSetupSchema_Idempotent(t *testing.T) {
	db, _ := setupTestStore(t)
	if err := SetupSchema(db); err != nil {
		t.Errorf("second SetupSchema() error = %v", err)
	}
}

func TestStore_AddGet(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	rec := mustAdd(t, s, surveyResponse(t, "tx-1", "009", "49900001234", "201", false, "all fine"))
	want := Record{
		ID:        "tx-1",
		SurveyID:  "009",
		FormType:  "0001",
		RuRef:     "49900001234",
		Period:    "201",
		TxID:      "tx-1",
		AddedMs:   addedMsAt(1),
		AddedDate: "2024-03-01T09:00:01Z",
		Digest:    rec.Digest,
		Size:      len(rec.Response),
		Response:  rec.Response,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("Add() record mismatch (-want +got):\n%s", diff)
	}
	if len(rec.Digest) != 64 {
		t.Errorf("expected a 64 character hex digest, got %q", rec.Digest)
	}
	if !strings.HasPrefix(string(rec.Response), `{"collection":{"instrument_id":"0001","period":"201"},"data":`) {
		t.Errorf("expected canonical response, got %s", rec.Response)
	}

	got, err := s.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_AddKeyFieldSpellings(t *testing.T) {
	_, s := setupTestStore(t)
	rec := mustAdd(t, s, []byte(`{"txId":"abc","surveyId":"139","formType":"0005","ruRef":"123","period":"1803","invalid":"yes"}`))

	if rec.ID != "abc" || rec.SurveyID != "139" || rec.FormType != "0005" || rec.RuRef != "123" || rec.Period != "1803" {
		t.Errorf("unexpected key fields: %+v", rec)
	}
	if rec.Invalid {
		t.Error("a non-boolean invalid field should not mark the response invalid")
	}
}

func TestStore_AddWithoutTxID(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	rec := mustAdd(t, s, []byte(`{"survey_id":"009","data":{"1":"x"}}`))
	if rec.ID != rec.Digest[:32] {
		t.Errorf("expected id to be the digest prefix, got %q for digest %q", rec.ID, rec.Digest)
	}

	// Same content, different formatting and key order.
	_, err := s.Add(ctx, []byte(`{ "data": {"1": "x"}, "survey_id": "009" }`))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for identical content, got %v", err)
	}
}

func TestStore_AddUnroutableTxID(t *testing.T) {
	_, s := setupTestStore(t)
	for _, txID := range []string{"export", "import", "a/b", `a\b`, "..", "."} {
		t.Run(txID, func(t *testing.T) {
			rec := mustAdd(t, s, []byte(`{"tx_id":`+strconv.Quote(txID)+`,"survey_id":"009"}`))
			if rec.ID != rec.Digest[:32] {
				t.Errorf("expected the digest prefix as id, got %q", rec.ID)
			}
			if rec.TxID != txID {
				t.Errorf("expected TxID %q to be kept, got %q", txID, rec.TxID)
			}
			got, err := s.Get(context.Background(), rec.ID)
			if err != nil || got.TxID != txID {
				t.Errorf("Get(%s) = %+v, %v", rec.ID, got, err)
			}
		})
	}

	rec := mustAdd(t, s, []byte(`{"tx_id":"Export 2024 #1","survey_id":"009"}`))
	if rec.ID != "Export 2024 #1" {
		t.Errorf("expected a usable tx_id to become the id, got %q", rec.ID)
	}
}

func TestStore_AddDuplicateTxID(t *testing.T) {
	_, s := setupTestStore(t)
	mustAdd(t, s, surveyResponse(t, "tx-1", "009", "1", "201", false, "first"))

	_, err := s.Add(context.Background(), surveyResponse(t, "tx-1", "009", "1", "201", false, "second"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestStore_AddInvalid(t *testing.T) {
	_, s := setupTestStore(t)
	for _, data := range []string{`{"a":`, `[1,2]`, `"text"`, ``, `{"a":1} trailing`} {
		if _, err := s.Add(context.Background(), []byte(data)); !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("Add(%q) expected ErrInvalidResponse, got %v", data, err)
		}
	}
}

func TestStore_GetDelete(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on delete, got %v", err)
	}

	mustAdd(t, s, surveyResponse(t, "tx-1", "009", "1", "201", false, "x"))
	if err := s.Delete(ctx, "tx-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "tx-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_Compression(t *testing.T) {
	large := surveyResponse(t, "large", "009", "1", "201", false, strings.Repeat("the same comment again ", 200))
	small := []byte(`{"tx_id":"a"}`)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			db, s := setupTestStore(t, WithCompression(c))
			ctx := context.Background()
			largeRec := mustAdd(t, s, large)
			mustAdd(t, s, small)

			got, err := s.Get(ctx, "large")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got.Response) != string(largeRec.Response) {
				t.Error("response changed through compression")
			}

			var used string
			var stored int
			err = db.QueryRow(`SELECT compression, LENGTH(body) FROM responses WHERE id = ?;`, "large").Scan(&used, &stored)
			if err != nil {
				t.Fatalf("failed to read stored body: %v", err)
			}
			if used != c.String() {
				t.Errorf("expected compression %q, got %q", c.String(), used)
			}
			if c != CompressionNone && stored >= largeRec.Size {
				t.Errorf("expected compressed body smaller than %d, got %d", largeRec.Size, stored)
			}

			if err = db.QueryRow(`SELECT compression FROM responses WHERE id = ?;`, "a").Scan(&used); err != nil {
				t.Fatalf("failed to read stored body: %v", err)
			}
			if used != "none" {
				t.Errorf("expected tiny body to be stored uncompressed, got %q", used)
			}
		})
	}
}
