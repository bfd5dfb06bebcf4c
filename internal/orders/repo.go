package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-merch-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-merch-checkout.git/internal/metrics"
)

var ErrNotFound = errors.New("order not found")

type Repo struct {
	DB     *pgxpool.Pool
	Ledger *inventory.Ledger
}

// FindByExternalID backs checkout idempotency: a replayed external_id gets
// the original order back, no new reservation.
func (r *Repo) FindByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return r.findOne(ctx, `WHERE external_id = $1`, externalID)
}

func (r *Repo) GetByID(ctx context.Context, orderID string) (*Order, error) {
	return r.findOne(ctx, `WHERE id = $1`, orderID)
}

func (r *Repo) GetByProcessorRef(ctx context.Context, ref string) (*Order, error) {
	return r.findOne(ctx, `WHERE processor_ref = $1`, ref)
}

func (r *Repo) findOne(ctx context.Context, where string, arg any) (*Order, error) {
	var (
		o            Order
		status       string
		externalID   *string
		processorRef *string
		eventID      *string
		secret       *string
		shipping     []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, external_id, buyer_id, store_id, payment_status, processor_ref,
		       processor_event_id, client_secret, total_cents, currency, shipping_address,
		       created_at, updated_at
		FROM orders `+where, arg).Scan(
		&o.ID, &externalID, &o.BuyerID, &o.StoreID, &status, &processorRef,
		&eventID, &secret, &o.TotalCents, &o.Currency, &shipping,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.PaymentStatus = PaymentStatus(status)
	if externalID != nil {
		o.ExternalID = *externalID
	}
	if processorRef != nil {
		o.ProcessorRef = *processorRef
	}
	if eventID != nil {
		o.ProcessorEventID = *eventID
	}
	if secret != nil {
		o.ClientSecret = *secret
	}
	if len(shipping) > 0 {
		o.ShippingAddress = &Address{}
		if err := json.Unmarshal(shipping, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
	}
	return &o, nil
}

// CreateCheckoutTx reserves every line and inserts the pending order with
// its snapshots in one transaction. Any rejected line rolls the whole thing
// back and the full rejection set is returned, so the client learns every
// unavailable item at once.
func (r *Repo) CreateCheckoutTx(ctx context.Context, o *Order, lines []Line, expiresAt time.Time) ([]inventory.Rejection, error) {
	if o.TotalCents != sumLines(lines) {
		return nil, fmt.Errorf("order %s: total %d does not match line sum %d", o.ID, o.TotalCents, sumLines(lines))
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var rejects []inventory.Rejection
	for _, ln := range lines {
		rej, err := r.Ledger.ReserveTx(ctx, tx, o.ID, inventory.Hold{VariantID: ln.VariantID, Qty: ln.Qty}, expiresAt)
		if err != nil {
			return nil, err
		}
		if rej != nil {
			rejects = append(rejects, *rej)
		}
	}
	if len(rejects) > 0 {
		metrics.ReservationOps.WithLabelValues("reserve", "rejected").Inc()
		return rejects, nil // rollback via defer
	}

	var shipping []byte
	if o.ShippingAddress != nil {
		if shipping, err = json.Marshal(o.ShippingAddress); err != nil {
			return nil, err
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, buyer_id, store_id, payment_status, total_cents, currency, shipping_address)
		VALUES ($1, NULLIF($2,''), $3, $4, 'pending', $5, $6, $7)`,
		o.ID, o.ExternalID, o.BuyerID, o.StoreID, o.TotalCents, o.Currency, shipping)
	if err != nil {
		return nil, err
	}

	for _, ln := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines(id, order_id, variant_id, sku, title, unit_price_cents, qty, line_total_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.NewString(), o.ID, ln.VariantID, ln.SKU, ln.Title, ln.UnitPriceCents, ln.Qty, ln.LineTotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	metrics.ReservationOps.WithLabelValues("reserve", "ok").Inc()
	return nil, nil
}

func sumLines(lines []Line) int {
	total := 0
	for _, ln := range lines {
		total += ln.LineTotalCents
	}
	return total
}

// AttachIntent stores the processor's reference once the intent exists.
func (r *Repo) AttachIntent(ctx context.Context, orderID, ref, clientSecret string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET processor_ref = $2, client_secret = $3, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`, orderID, ref, clientSecret)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid commits the order's reservations and flips it to paid in one
// transaction. The conditional status update is the per-order mutual
// exclusion: a duplicate delivery finds zero rows and applied=false.
func (r *Repo) MarkPaid(ctx context.Context, orderID, eventID string) (applied bool, err error) {
	return r.settle(ctx, orderID, eventID, StatusPaid, r.Ledger.CommitTx)
}

// MarkFailed releases the reservations and flips the order to failed.
func (r *Repo) MarkFailed(ctx context.Context, orderID, eventID string) (applied bool, err error) {
	return r.settle(ctx, orderID, eventID, StatusFailed, r.Ledger.ReleaseTx)
}

func (r *Repo) settle(ctx context.Context, orderID, eventID string, to PaymentStatus,
	ledgerOp func(context.Context, pgx.Tx, string) (int, error)) (bool, error) {

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status = $2, processor_event_id = $3, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`, orderID, string(to), eventID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil // already terminal; reservations were settled by that transition
	}

	if _, err := ledgerOp(ctx, tx, orderID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	op := "release"
	if to == StatusPaid {
		op = "commit"
	}
	metrics.ReservationOps.WithLabelValues(op, "ok").Inc()
	return true, nil
}

// CancelPending cancels a pending order and releases its holds; used by the
// expiry sweeper and by checkout compensation when intent creation fails.
// Expired reservations whose order row never landed are released as well.
func (r *Repo) CancelPending(ctx context.Context, orderID string) (canceled bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status = 'canceled', updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`, orderID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return false, err
		}
		if exists {
			// terminal already; that transition settled the ledger
			return false, nil
		}
		// reservation without an order row (crash between reserve and intent);
		// fall through and release the holds
	}

	if _, err := r.Ledger.ReleaseTx(ctx, tx, orderID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	metrics.ReservationOps.WithLabelValues("release", "ok").Inc()
	return ct.RowsAffected() == 1, nil
}

// GetWithLines is the read-side materializer. identifier may be the internal
// order id (uuid) or the processor's payment reference.
func (r *Repo) GetWithLines(ctx context.Context, identifier string) (*OrderView, error) {
	var (
		o   *Order
		err error
	)
	if _, perr := uuid.Parse(identifier); perr == nil {
		o, err = r.GetByID(ctx, identifier)
		if errors.Is(err, ErrNotFound) {
			// nothing stops a processor from minting uuid-shaped refs
			o, err = r.GetByProcessorRef(ctx, identifier)
		}
	} else {
		o, err = r.GetByProcessorRef(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT l.variant_id, COALESCE(v.product_id::text, ''), COALESCE(p.title, ''),
		       l.sku, l.title, l.unit_price_cents, l.qty, l.line_total_cents
		FROM order_lines l
		LEFT JOIN product_variants v ON v.id = l.variant_id
		LEFT JOIN products p ON p.id = v.product_id
		WHERE l.order_id = $1
		ORDER BY l.sku`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	view := &OrderView{
		ID:              o.ID,
		BuyerID:         o.BuyerID,
		StoreID:         o.StoreID,
		PaymentStatus:   o.PaymentStatus,
		ProcessorRef:    o.ProcessorRef,
		TotalCents:      o.TotalCents,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for rows.Next() {
		var lv LineView
		if err := rows.Scan(&lv.VariantID, &lv.ProductID, &lv.ProductTitle,
			&lv.SKU, &lv.Title, &lv.UnitPriceCents, &lv.Qty, &lv.LineTotalCents); err != nil {
			return nil, err
		}
		view.Lines = append(view.Lines, lv)
	}
	return view, rows.Err()
}
