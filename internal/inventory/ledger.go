package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIntegrity means the reserved/stock counters disagree with the
// reservation rows. Never corrected silently; alert and stop.
var ErrIntegrity = errors.New("inventory integrity violation")

type Hold struct {
	VariantID string
	Qty       int
}

// Rejection reports one line that could not be reserved.
type Rejection struct {
	VariantID string `json:"variant_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// Ledger is the only writer of inventory_items and reservations.
type Ledger struct{ DB *pgxpool.Pool }

// ReserveTx holds qty units of a variant inside the caller's transaction.
// The guard is a single conditional update: zero rows affected means not
// enough available stock, returned as a Rejection, not an error. Two
// concurrent reservations for the last unit cannot both pass the predicate.
func (l *Ledger) ReserveTx(ctx context.Context, tx pgx.Tx, orderID string, h Hold, expiresAt time.Time) (*Rejection, error) {
	ct, err := tx.Exec(ctx, `
		UPDATE inventory_items
		SET reserved = reserved + $2, updated_at = now()
		WHERE variant_id = $1 AND stock - reserved >= $2`, h.VariantID, h.Qty)
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", h.VariantID, err)
	}
	if ct.RowsAffected() == 0 {
		avail := 0
		err := tx.QueryRow(ctx, `SELECT stock - reserved FROM inventory_items WHERE variant_id = $1`, h.VariantID).Scan(&avail)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return &Rejection{VariantID: h.VariantID, Required: h.Qty, Available: avail}, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations(id, order_id, variant_id, qty, status, expires_at)
		VALUES ($1, $2, $3, $4, 'RESERVED', $5)
		ON CONFLICT (order_id, variant_id) DO NOTHING`,
		uuid.NewString(), orderID, h.VariantID, h.Qty, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("record reservation %s: %w", h.VariantID, err)
	}
	return nil, nil
}

// ReleaseTx returns an order's held units to available stock. Only rows
// still RESERVED are flipped, so calling twice is a no-op the second time.
func (l *Ledger) ReleaseTx(ctx context.Context, tx pgx.Tx, orderID string) (int, error) {
	return l.settleTx(ctx, tx, orderID, "RELEASED", `
		UPDATE inventory_items
		SET reserved = reserved - $2, updated_at = now()
		WHERE variant_id = $1 AND reserved >= $2`)
}

// CommitTx converts an order's holds into permanent stock decrements.
// Idempotent the same way ReleaseTx is.
func (l *Ledger) CommitTx(ctx context.Context, tx pgx.Tx, orderID string) (int, error) {
	return l.settleTx(ctx, tx, orderID, "COMMITTED", `
		UPDATE inventory_items
		SET stock = stock - $2, reserved = reserved - $2, updated_at = now()
		WHERE variant_id = $1 AND reserved >= $2`)
}

func (l *Ledger) settleTx(ctx context.Context, tx pgx.Tx, orderID, status, counterSQL string) (int, error) {
	rows, err := tx.Query(ctx, `
		UPDATE reservations SET status = $2
		WHERE order_id = $1 AND status = 'RESERVED'
		RETURNING variant_id, qty`, orderID, status)
	if err != nil {
		return 0, err
	}
	type rec struct {
		variantID string
		qty       int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.variantID, &x.qty); err != nil {
			rows.Close()
			return 0, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, x := range recs {
		ct, err := tx.Exec(ctx, counterSQL, x.variantID, x.qty)
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() != 1 {
			// a reservation row existed but the counter cannot cover it
			return 0, fmt.Errorf("%w: variant %s reserved < %d", ErrIntegrity, x.variantID, x.qty)
		}
	}
	return len(recs), nil
}

// Release is ReleaseTx in its own transaction.
func (l *Ledger) Release(ctx context.Context, orderID string) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := l.ReleaseTx(ctx, tx, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExpiredOrderIDs lists orders that still hold expired, unsettled reservations.
func (l *Ledger) ExpiredOrderIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT DISTINCT order_id FROM reservations
		WHERE status = 'RESERVED' AND expires_at <= $1
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
