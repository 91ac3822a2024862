package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgflex/pgflex/pkg/models"
)

type DecisionRepository struct {
	db *sql.DB
}

func NewDecisionRepository(db *sql.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// DecisionRecord is a persisted decision with its assigned row ID.
type DecisionRecord struct {
	ID int `json:"id"`
	models.ScalingDecision
}

func (r *DecisionRepository) Insert(ctx context.Context, decision *models.ScalingDecision) error {
	query := `
		INSERT INTO decision_log
			(pool_id, timestamp, action, current_tier, target_tier,
			 reason, cooldown_active, stale_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		decision.PoolID,
		decision.Timestamp,
		decision.Action,
		decision.CurrentTier,
		decision.TargetTier,
		decision.Reason,
		decision.CooldownActive,
		decision.StaleData,
	)
	return err
}

func (r *DecisionRepository) GetByPool(ctx context.Context, poolID string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, pool_id, timestamp, action, current_tier, target_tier,
			   reason, cooldown_active, stale_data
		FROM decision_log
		WHERE pool_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, poolID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDecisions(rows)
}

func (r *DecisionRepository) GetRecent(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, pool_id, timestamp, action, current_tier, target_tier,
			   reason, cooldown_active, stale_data
		FROM decision_log
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// PruneBefore trims decision history older than the cutoff.
func (r *DecisionRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM decision_log WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanDecisions(rows *sql.Rows) ([]DecisionRecord, error) {
	var decisions []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		err := rows.Scan(
			&d.ID, &d.PoolID, &d.Timestamp, &d.Action,
			&d.CurrentTier, &d.TargetTier, &d.Reason,
			&d.CooldownActive, &d.StaleData,
		)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}
