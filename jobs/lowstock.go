package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LowStockScanJob sweeps a fiscal-year dataset for items whose current
// balance sits at or below their minimum threshold and records an alert row
// per finding.
type LowStockScanJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewLowStockScanJob constructs the job.
func NewLowStockScanJob(pool *pgxpool.Pool, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{pool: pool, logger: logger, now: time.Now}
}

type lowStockFinding struct {
	ItemID       string
	Code         string
	Name         string
	Balance      int
	MinThreshold int
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	year := payload.FiscalYear
	if year == "" {
		var err error
		if year, err = j.activeYear(ctx); err != nil {
			return err
		}
	}

	findings, err := j.scan(ctx, year)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		j.logger.Info("low stock scan clear", slog.String("fiscal_year", year))
		return nil
	}

	now := j.now().UTC()
	for _, f := range findings {
		j.logger.Warn("low stock",
			slog.String("fiscal_year", year),
			slog.String("item_code", f.Code),
			slog.String("item_name", f.Name),
			slog.Int("balance", f.Balance),
			slog.Int("min_threshold", f.MinThreshold))
		_, err := j.pool.Exec(ctx, `
			INSERT INTO low_stock_alerts (id, fiscal_year, item_id, balance, min_threshold, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (fiscal_year, item_id) DO UPDATE
			SET balance = EXCLUDED.balance, detected_at = EXCLUDED.detected_at`,
			uuid.NewString(), year, f.ItemID, f.Balance, f.MinThreshold, now)
		if err != nil {
			return err
		}
	}
	j.logger.Info("low stock scan done",
		slog.String("fiscal_year", year),
		slog.Int("alerts", len(findings)))
	return nil
}

func (j *LowStockScanJob) activeYear(ctx context.Context) (string, error) {
	var year string
	err := j.pool.QueryRow(ctx,
		`SELECT year FROM fiscal_years WHERE active LIMIT 1`).Scan(&year)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", asynq.SkipRetry
	}
	return year, err
}

func (j *LowStockScanJob) scan(ctx context.Context, year string) ([]lowStockFinding, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT id, code, name, current_balance, min_threshold
		FROM items
		WHERE fiscal_year = $1 AND threshold_enabled AND current_balance <= min_threshold
		ORDER BY code`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []lowStockFinding
	for rows.Next() {
		var f lowStockFinding
		if err := rows.Scan(&f.ItemID, &f.Code, &f.Name, &f.Balance, &f.MinThreshold); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
