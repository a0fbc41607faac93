package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CTAG07/sdxstore/pkg/search"
)

// MaxResults is the largest page Search returns.
const MaxResults = 100

var ErrInvalidFilter = errors.New("invalid filter")

// fieldWeights boosts the coordinate fields when ranking free-text
// queries. Transaction ids are random and kept out of the ranking.
var fieldWeights = map[string]int{
	"survey_id":       3,
	"surveyId":        3,
	"ru_ref":          3,
	"ruRef":           3,
	"metadata.ru_ref": 3,
	"form_type":       2,
	"formType":        2,
	"period":          2,
	"tx_id":           0,
	"txId":            0,
}

// Filter selects stored responses. Blank fields match everything.
type Filter struct {
	SurveyID string
	FormType string
	RuRef    string
	Period   string
	// AddedSince is an inclusive lower bound on the added time, in Unix
	// milliseconds. Zero means no bound.
	AddedSince int64
	// Invalid restricts results to invalid (true) or valid (false)
	// responses when set.
	Invalid *bool
	// Query ranks matching responses by relevance to free text. Without
	// a query, results are ordered newest first.
	Query string
	// Page is 1-based. Zero is the first page.
	Page int
	// PerPage is between 1 and MaxResults. Zero is MaxResults.
	PerPage int
}

func (f Filter) normalize() (Filter, error) {
	if f.Page < 0 {
		return f, fmt.Errorf("%w: page must be at least 1", ErrInvalidFilter)
	}
	if f.PerPage < 0 || f.PerPage > MaxResults {
		return f, fmt.Errorf("%w: per_page must be between 1 and %d", ErrInvalidFilter, MaxResults)
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PerPage == 0 {
		f.PerPage = MaxResults
	}
	return f, nil
}

// where builds the SQL condition for the filter's column constraints.
func (f Filter) where() (string, []any) {
	var (
		conditions []string
		args       []any
	)
	for _, c := range []struct {
		column, value string
	}{
		{"survey_id", f.SurveyID},
		{"form_type", f.FormType},
		{"ru_ref", f.RuRef},
		{"period", f.Period},
	} {
		if strings.TrimSpace(c.value) != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	if f.AddedSince > 0 {
		conditions = append(conditions, "added_ms >= ?")
		args = append(args, f.AddedSince)
	}
	if f.Invalid != nil {
		conditions = append(conditions, "invalid = ?")
		args = append(args, *f.Invalid)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ResultList is one page of search results. TotalHits counts every match,
// not just the ones on this page.
type ResultList struct {
	TotalHits int      `json:"total_hits"`
	Page      int      `json:"page"`
	PerPage   int      `json:"per_page"`
	Results   []Record `json:"results"`
}

// Search returns a page of responses matching the filter.
func (s *Store) Search(ctx context.Context, f Filter) (ResultList, error) {
	f, err := f.normalize()
	if err != nil {
		return ResultList{}, err
	}
	where, args := f.where()
	list := ResultList{Page: f.Page, PerPage: f.PerPage, Results: []Record{}}

	if strings.TrimSpace(f.Query) != "" {
		return s.searchRanked(ctx, f, where, args, list)
	}

	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`+where+`;`, args...).Scan(&list.TotalHits); err != nil {
		return ResultList{}, fmt.Errorf("failed to count responses: %w", err)
	}
	pageArgs := append(args, f.PerPage, (f.Page-1)*f.PerPage)
	list.Results, err = s.queryRecords(ctx, `SELECT `+recordColumns+` FROM responses`+where+` ORDER BY added_ms DESC, id LIMIT ? OFFSET ?;`, pageArgs...)
	if err != nil {
		return ResultList{}, err
	}
	return list, nil
}

// searchRanked loads every response matching the column constraints and
// ranks them against the query.
func (s *Store) searchRanked(ctx context.Context, f Filter, where string, args []any, list ResultList) (ResultList, error) {
	records, err := s.queryRecords(ctx, `SELECT `+recordColumns+` FROM responses`+where+` ORDER BY added_ms DESC, id;`, args...)
	if err != nil {
		return ResultList{}, err
	}

	byID := make(map[string]Record, len(records))
	documents := make([]search.Document, 0, len(records))
	for _, rec := range records {
		doc, err := rec.Document()
		if err != nil {
			return ResultList{}, fmt.Errorf("response %s: %w", rec.ID, err)
		}
		byID[rec.ID] = rec
		documents = append(documents, search.FromJSON(rec.ID, doc, fieldWeights))
	}

	hits := search.New(documents).Search(f.Query, 0)
	list.TotalHits = len(hits)
	start := min((f.Page-1)*f.PerPage, len(hits))
	end := min(start+f.PerPage, len(hits))
	for _, hit := range hits[start:end] {
		list.Results = append(list.Results, byID[hit.Name])
	}
	return list, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	records := []Record{}
	err := s.eachRecord(ctx, func(rec Record) error {
		records = append(records, rec)
		return nil
	}, query, args...)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// eachRecord runs query and calls fn for each record as it is read. An
// error from fn stops the iteration and is returned as is.
func (s *Store) eachRecord(ctx context.Context, fn func(Record) error, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err = fn(rec); err != nil {
			return err
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("failed to read responses: %w", err)
	}
	return nil
}
