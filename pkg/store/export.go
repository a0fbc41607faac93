package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ExportRecord is the archived form of a stored response. Exports are CBOR
// sequences: one ExportRecord after another with no framing.
type ExportRecord struct {
	ID      string `cbor:"id"`
	AddedMs int64  `cbor:"added_ms"`
	Digest  string `cbor:"digest"`
	// Response is the canonical JSON text of the document.
	Response []byte `cbor:"response"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// Export writes every response matching the filter's column constraints
// to w, oldest first. Query and paging are ignored. Records are encoded as
// they are read, so a failure can leave a partial export in w. It returns
// the number of records written.
func (s *Store) Export(ctx context.Context, w io.Writer, f Filter) (int, error) {
	where, args := f.where()
	enc := encMode.NewEncoder(w)
	count := 0
	err := s.eachRecord(ctx, func(rec Record) error {
		if err := enc.Encode(ExportRecord{ID: rec.ID, AddedMs: rec.AddedMs, Digest: rec.Digest, Response: rec.Response}); err != nil {
			return fmt.Errorf("failed to encode response %s: %w", rec.ID, err)
		}
		count++
		return nil
	}, `SELECT `+recordColumns+` FROM responses`+where+` ORDER BY added_ms, id;`, args...)
	if err != nil {
		return count, err
	}
	s.logger.Info("Exported responses", "count", count)
	return count, nil
}

// Import reads an export produced by Export and stores each response with
// its original added time. Responses that are already stored are skipped.
// A record whose response no longer matches its digest stops the import
// with ErrDigestMismatch. It returns the number of responses added.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	dec := decMode.NewDecoder(r)
	var added, skipped int
	for {
		var rec ExportRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return added, fmt.Errorf("failed to decode export record %d: %w", added+skipped+1, err)
		}

		_, err = s.add(ctx, rec.Response, rec.AddedMs, rec.Digest)
		if errors.Is(err, ErrDuplicate) {
			skipped++
			continue
		}
		if err != nil {
			return added, fmt.Errorf("failed to import response %s: %w", rec.ID, err)
		}
		added++
	}
	s.logger.Info("Imported responses", "added", added, "skipped", skipped)
	return added, nil
}
