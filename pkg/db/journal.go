package db

import (
	"context"
	"time"
)

// Execution is one journaled order execution.
type Execution struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Kind      string    `json:"kind"` // "place" or "close"
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Volume    float64   `json:"volume"`
	Price     float64   `json:"price"`
	OrderID   int64     `json:"order_id"`
	DealID    int64     `json:"deal_id"`
	Filling   string    `json:"filling"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordExecution appends one execution to the journal.
func (d *Database) RecordExecution(ctx context.Context, e Execution) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO executions (id, account_id, kind, symbol, side, volume, price, order_id, deal_id, filling, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AccountID, e.Kind, e.Symbol, e.Side, e.Volume, e.Price, e.OrderID, e.DealID, e.Filling, e.Comment, e.CreatedAt)
	return err
}

// ListExecutions returns the account's most recent executions.
func (d *Database) ListExecutions(ctx context.Context, accountID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, account_id, kind, symbol, side, volume, price, order_id, deal_id, filling, comment, created_at
		FROM executions
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Symbol, &e.Side, &e.Volume, &e.Price, &e.OrderID, &e.DealID, &e.Filling, &e.Comment, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
