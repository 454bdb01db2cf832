// Package jobs holds the background task definitions and the Asynq worker
// runtime that executes them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan sweeps item balances against their minimum thresholds.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskBalanceIntegrity replays the movement and custody logs and flags
	// items whose stored running balance has drifted from the replay.
	TaskBalanceIntegrity = "inventory:balance_integrity"
)

// LowStockScanPayload selects the dataset to sweep. An empty FiscalYear means
// the currently active year.
type LowStockScanPayload struct {
	FiscalYear string `json:"fiscal_year,omitempty"`
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// BalanceIntegrityPayload selects the dataset to verify. An empty FiscalYear
// means the currently active year.
type BalanceIntegrityPayload struct {
	FiscalYear string `json:"fiscal_year,omitempty"`
}

// NewBalanceIntegrityTask constructs an Asynq task.
func NewBalanceIntegrityTask(payload BalanceIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceIntegrity, data), nil
}
