package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"BriefMaker/internal/domain/models"
	"BriefMaker/internal/domain/repository"
)

// ClickHouseMomentSource reads raw tick batches captured by the stream
// recorder, oldest first.
type ClickHouseMomentSource struct {
	db    *sql.DB
	table string
}

func NewClickHouseMomentSource(db *sql.DB, table string) *ClickHouseMomentSource {
	return &ClickHouseMomentSource{db: db, table: table}
}

// MomentSchema returns the statement that creates the moment table.
func MomentSchema(database, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            ts DateTime64(9, 'UTC'),
            data String
        ) ENGINE = MergeTree ORDER BY ts`, database, table)
}

func (s *ClickHouseMomentSource) MomentsSince(ctx context.Context, from time.Time, limit int) ([]models.StreamMoment, error) {
	q := fmt.Sprintf("SELECT ts, data FROM %s WHERE ts >= ? ORDER BY ts ASC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query moments: %w", err)
	}
	defer rows.Close()

	out := make([]models.StreamMoment, 0, limit)
	for rows.Next() {
		var (
			m   models.StreamMoment
			raw string
		)
		if err := rows.Scan(&m.Time, &raw); err != nil {
			return nil, fmt.Errorf("scan moment: %w", err)
		}
		m.Data = []byte(raw)
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ repository.MomentSource = (*ClickHouseMomentSource)(nil)
