package store

import (
	"context"
	"fmt"
)

// Summary holds aggregated statistics for the stored responses.
type Summary struct {
	Total         int            `json:"total"`          // The number of stored responses
	Invalid       int            `json:"invalid"`        // How many of them were flagged invalid
	OriginalBytes int64          `json:"original_bytes"` // The canonical JSON size of all responses
	StoredBytes   int64          `json:"stored_bytes"`   // The size of all bodies after compression
	FirstAddedMs  int64          `json:"first_added_ms"` // Zero when the store is empty
	LastAddedMs   int64          `json:"last_added_ms"`
	BySurvey      map[string]int `json:"by_survey"`
}

// Stats returns a snapshot of statistics for the whole store.
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	summary := Summary{BySurvey: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(invalid), 0), COALESCE(SUM(size), 0), COALESCE(SUM(LENGTH(body)), 0),
       COALESCE(MIN(added_ms), 0), COALESCE(MAX(added_ms), 0)
FROM responses;`).Scan(&summary.Total, &summary.Invalid, &summary.OriginalBytes, &summary.StoredBytes,
		&summary.FirstAddedMs, &summary.LastAddedMs)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize responses: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT survey_id, COUNT(*) FROM responses GROUP BY survey_id;`)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count surveys: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			surveyID string
			count    int
		)
		if err = rows.Scan(&surveyID, &count); err != nil {
			return Summary{}, err
		}
		summary.BySurvey[surveyID] = count
	}
	if err = rows.Err(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}
