package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/CTAG07/sdxstore/pkg/templating"
)

var (
	ErrNotFound        = errors.New("response not found")
	ErrDuplicate       = errors.New("response already stored")
	ErrInvalidResponse = errors.New("invalid response")
	ErrDigestMismatch  = errors.New("response digest mismatch")
)

// Key fields are read from the first of these paths that holds a
// primitive. Both the camel case and snake case spellings occur in
// submitted responses.
var (
	surveyIDPaths = []string{"survey_id", "surveyId"}
	formTypePaths = []string{"form_type", "formType", "collection.instrument_id"}
	ruRefPaths    = []string{"ru_ref", "ruRef", "metadata.ru_ref"}
	periodPaths   = []string{"period", "collection.period"}
	txIDPaths     = []string{"tx_id", "txId"}
)

// Record is a stored response and its metadata.
type Record struct {
	ID        string `json:"id"`
	SurveyID  string `json:"survey_id"`
	FormType  string `json:"form_type"`
	RuRef     string `json:"ru_ref"`
	Period    string `json:"period"`
	TxID      string `json:"tx_id,omitempty"`
	Invalid   bool   `json:"invalid"`
	AddedMs   int64  `json:"added_ms"`
	AddedDate string `json:"added_date"`
	Digest    string `json:"digest"`
	Size      int    `json:"size"`
	// Response is the canonical JSON of the stored document.
	Response json.RawMessage `json:"response,omitempty"`
}

// Document decodes the stored response for rendering or inspection.
func (r Record) Document() (any, error) {
	return templating.DecodeBytes(r.Response)
}

// Option configures a Store.
type Option func(*Store)

// WithCompression sets the algorithm used for newly stored bodies.
// Existing bodies keep the algorithm they were written with.
func WithCompression(c Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithClock replaces time.Now as the source of added timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store holds the database connection and the prepared statements used to
// read and write responses. It is safe for concurrent use.
type Store struct {
	db          *sql.DB
	logger      *slog.Logger
	compression Compression
	now         func() time.Time

	stmtInsert *sql.Stmt
	stmtGet    *sql.Stmt
	stmtDelete *sql.Stmt
}

const recordColumns = `id, survey_id, form_type, ru_ref, period, tx_id, invalid, added_ms, added_date, digest, compression, size, body`

// NewStore creates a Store over a database prepared with SetupSchema. It
// pre-compiles the fixed SQL statements, returning an error if any
// preparation fails.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:          db,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		compression: CompressionZstd,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.stmtInsert, err = db.Prepare(`INSERT INTO responses (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}
	s.stmtGet, err = db.Prepare(`SELECT ` + recordColumns + ` FROM responses WHERE id = ?;`)
	if err != nil {
		return nil, err
	}
	s.stmtDelete, err = db.Prepare(`DELETE FROM responses WHERE id = ?;`)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the prepared statements. The database itself is owned by
// the caller.
func (s *Store) Close() {
	_ = s.stmtInsert.Close()
	_ = s.stmtGet.Close()
	_ = s.stmtDelete.Close()
}

// Add stores a JSON response. The document must be an object. Its id is
// the transaction id when one is present and usable as a path segment, and
// a prefix of its digest otherwise. Storing the same id or the same content twice fails with
// ErrDuplicate.
func (s *Store) Add(ctx context.Context, data []byte) (Record, error) {
	return s.add(ctx, data, s.now().UnixMilli(), "")
}

// reservedIDs name the collection actions that share the id namespace
// under /api/responses/.
var reservedIDs = map[string]bool{"export": true, "import": true}

// usableID reports whether a transaction id can serve as a record id. The
// id must be a single path segment that does not name a collection action.
// Other transaction ids are still stored in TxID.
func usableID(id string) bool {
	if id == "" || id == "." || id == ".." || reservedIDs[id] {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}

// add stores a response added at addedMs. A non-empty wantDigest must
// match the digest of the response.
func (s *Store) add(ctx context.Context, data []byte, addedMs int64, wantDigest string) (Record, error) {
	doc, err := templating.DecodeBytes(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return Record{}, fmt.Errorf("%w: document must be a JSON object", ErrInvalidResponse)
	}

	canonical, err := templating.Canonical(doc)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode response: %w", err)
	}
	digest := digestResponse(canonical).String()
	if wantDigest != "" && wantDigest != digest {
		return Record{}, fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, wantDigest, digest)
	}

	rec := Record{
		SurveyID:  firstString(doc, surveyIDPaths),
		FormType:  firstString(doc, formTypePaths),
		RuRef:     firstString(doc, ruRefPaths),
		Period:    firstString(doc, periodPaths),
		TxID:      firstString(doc, txIDPaths),
		AddedMs:   addedMs,
		AddedDate: time.UnixMilli(addedMs).UTC().Format(time.RFC3339),
		Digest:    digest,
		Size:      len(canonical),
		Response:  canonical,
	}
	if invalid, ok := templating.Find("invalid", doc); ok {
		rec.Invalid, _ = invalid.(bool)
	}
	rec.ID = rec.TxID
	if !usableID(rec.ID) {
		rec.ID = digest[:32]
	}

	body, used, err := compress(canonical, s.compression)
	if err != nil {
		return Record{}, fmt.Errorf("failed to compress response: %w", err)
	}

	_, err = s.stmtInsert.ExecContext(ctx,
		rec.ID, rec.SurveyID, rec.FormType, rec.RuRef, rec.Period, rec.TxID, rec.Invalid,
		rec.AddedMs, rec.AddedDate, rec.Digest, used.String(), rec.Size, body)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
		}
		return Record{}, fmt.Errorf("failed to insert response: %w", err)
	}

	s.logger.Debug("Response stored", "id", rec.ID, "survey_id", rec.SurveyID, "ru_ref", rec.RuRef,
		"invalid", rec.Invalid, "size", rec.Size, "stored", len(body), "compression", used.String())
	return rec, nil
}

// Get returns a stored response by id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(s.stmtGet.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Delete removes a stored response by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete response: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.logger.Debug("Response deleted", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec         Record
		compression string
		body        []byte
	)
	err := row.Scan(&rec.ID, &rec.SurveyID, &rec.FormType, &rec.RuRef, &rec.Period, &rec.TxID,
		&rec.Invalid, &rec.AddedMs, &rec.AddedDate, &rec.Digest, &compression, &rec.Size, &body)
	if err != nil {
		return Record{}, err
	}
	c, err := ParseCompression(compression)
	if err != nil {
		return Record{}, fmt.Errorf("response %s: %w", rec.ID, err)
	}
	rec.Response, err = decompress(body, c, rec.Size)
	if err != nil {
		return Record{}, fmt.Errorf("response %s: %w", rec.ID, err)
	}
	return rec, nil
}

func firstString(doc any, paths []string) string {
	for _, path := range paths {
		if s, ok := templating.StringAt(path, doc); ok {
			return s
		}
	}
	return ""
}

// isUniqueViolation matches the constraint error text shared by both
// SQLite drivers.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
