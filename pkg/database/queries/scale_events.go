package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgflex/pgflex/pkg/models"
)

type ScaleEventRepository struct {
	db *sql.DB
}

func NewScaleEventRepository(db *sql.DB) *ScaleEventRepository {
	return &ScaleEventRepository{db: db}
}

func (r *ScaleEventRepository) GetByPool(ctx context.Context, poolID string, from, to time.Time, limit int) ([]models.ScaleEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, pool_id, timestamp, action, tier_before, tier_after,
			   trigger_reason, status
		FROM scale_events
		WHERE pool_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp DESC
		LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, poolID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScaleEvents(rows)
}

func (r *ScaleEventRepository) GetRecent(ctx context.Context, limit int) ([]models.ScaleEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, pool_id, timestamp, action, tier_before, tier_after,
			   trigger_reason, status
		FROM scale_events
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScaleEvents(rows)
}

func scanScaleEvents(rows *sql.Rows) ([]models.ScaleEvent, error) {
	var events []models.ScaleEvent
	for rows.Next() {
		var e models.ScaleEvent
		err := rows.Scan(
			&e.ID, &e.PoolID, &e.Timestamp, &e.Action,
			&e.TierBefore, &e.TierAfter, &e.TriggerReason, &e.Status,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (r *ScaleEventRepository) GetStats(ctx context.Context, poolID string, from, to time.Time) (*ScaleStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE action = 'SCALE_UP') AS scale_up_count,
			COUNT(*) FILTER (WHERE action = 'SCALE_DOWN') AS scale_down_count,
			COUNT(*) FILTER (WHERE status = 'success') AS success_count,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed_count,
			COUNT(*) FILTER (WHERE status = 'degraded') AS degraded_count
		FROM scale_events
		WHERE pool_id = $1 AND timestamp >= $2 AND timestamp <= $3`

	var stats ScaleStats
	err := r.db.QueryRowContext(ctx, query, poolID, from, to).Scan(
		&stats.ScaleUpCount, &stats.ScaleDownCount,
		&stats.SuccessCount, &stats.FailedCount, &stats.DegradedCount,
	)

	if err != nil {
		return nil, err
	}

	stats.PoolID = poolID
	stats.From = from
	stats.To = to

	return &stats, nil
}

func (r *ScaleEventRepository) Insert(ctx context.Context, event *models.ScaleEvent) error {
	query := `
		INSERT INTO scale_events
			(pool_id, timestamp, action, tier_before, tier_after,
			 trigger_reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		event.PoolID,
		event.Timestamp,
		event.Action,
		event.TierBefore,
		event.TierAfter,
		event.TriggerReason,
		event.Status,
	).Scan(&event.ID)
}

type ScaleStats struct {
	PoolID         string    `json:"pool_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	ScaleUpCount   int       `json:"scale_up_count"`
	ScaleDownCount int       `json:"scale_down_count"`
	SuccessCount   int       `json:"success_count"`
	FailedCount    int       `json:"failed_count"`
	DegradedCount  int       `json:"degraded_count"`
}
