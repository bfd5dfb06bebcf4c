package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-merch-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-merch-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-merch-checkout.git/internal/logging"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
	"github.com/ariefcatur/go-merch-checkout.git/internal/payments"
)

var (
	ErrEmptyCart       = errors.New("empty cart")
	ErrInvalidQty      = errors.New("quantity must be positive")
	ErrUnknownVariant  = errors.New("unknown variant")
	ErrVariantDisabled = errors.New("variant not sellable")
	ErrMixedStores     = errors.New("cart references multiple stores")
	ErrMixedCurrencies = errors.New("cart mixes currencies")
)

// UnavailableError is an expected outcome, not a failure: it lists exactly
// which lines could not be reserved so the client can adjust the cart.
type UnavailableError struct {
	Lines []inventory.Rejection
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("insufficient stock for %d line(s)", len(e.Lines))
}

type Catalog interface {
	VariantsByID(ctx context.Context, ids []string) (map[string]catalog.VariantInfo, error)
}

type OrderStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*orders.Order, error)
	CreateCheckoutTx(ctx context.Context, o *orders.Order, lines []orders.Line, expiresAt time.Time) ([]inventory.Rejection, error)
	AttachIntent(ctx context.Context, orderID, ref, clientSecret string) error
	CancelPending(ctx context.Context, orderID string) (bool, error)
}

// IdemCache short-circuits a replayed external id before any catalog or DB
// work. Optional; the order store's external_id lookup is the durable path.
type IdemCache interface {
	GetResult(ctx context.Context, externalID string) (*Result, bool)
	PutResult(ctx context.Context, externalID string, res *Result)
}

type Service struct {
	Catalog        Catalog
	Orders         OrderStore
	Processor      payments.Processor
	Idem           IdemCache
	ReservationTTL time.Duration
}

type LineInput struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

type Request struct {
	ExternalID string
	BuyerID    string
	StoreID    string
	Lines      []LineInput
	Shipping   *orders.Address
}

type Result struct {
	OrderID      string
	ClientSecret string
	TotalCents   int
	Currency     string
	ExpiresAt    time.Time
	Idempotent   bool
}

// Checkout turns a cart into a pending order with held stock and a payment
// intent. Reservation + order insert are one transaction; the processor
// call happens after it commits and is compensated on failure.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	// duplicate variant lines count once against availability
	merged, err := MergeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	if req.ExternalID != "" {
		if s.Idem != nil {
			if res, ok := s.Idem.GetResult(ctx, req.ExternalID); ok {
				res.Idempotent = true
				return res, nil
			}
		}
		existing, err := s.Orders.FindByExternalID(ctx, req.ExternalID)
		if err == nil {
			return &Result{
				OrderID:      existing.ID,
				ClientSecret: existing.ClientSecret,
				TotalCents:   existing.TotalCents,
				Currency:     existing.Currency,
				Idempotent:   true,
			}, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
	}

	ids := make([]string, 0, len(merged))
	for _, ln := range merged {
		ids = append(ids, ln.VariantID)
	}
	variants, err := s.Catalog.VariantsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines, total, currency, err := snapshot(merged, variants, req.StoreID)
	if err != nil {
		return nil, err
	}

	ord := &orders.Order{
		ID:              uuid.NewString(),
		ExternalID:      req.ExternalID,
		BuyerID:         req.BuyerID,
		StoreID:         req.StoreID,
		PaymentStatus:   orders.StatusPending,
		TotalCents:      total,
		Currency:        currency,
		ShippingAddress: req.Shipping,
	}
	expiresAt := time.Now().UTC().Add(s.ReservationTTL)

	rejects, err := s.Orders.CreateCheckoutTx(ctx, ord, lines, expiresAt)
	if err != nil {
		return nil, err
	}
	if len(rejects) > 0 {
		return nil, &UnavailableError{Lines: rejects}
	}

	intent, err := s.Processor.CreateIntent(ctx, payments.IntentRequest{
		OrderID:     ord.ID,
		AmountCents: total,
		Currency:    currency,
	})
	if err != nil {
		// give the stock back; buyer retries checkout from scratch
		if _, cerr := s.Orders.CancelPending(ctx, ord.ID); cerr != nil {
			logging.FromCtx(ctx).Error("compensation failed, sweeper will pick it up",
				"order_id", ord.ID, "err", cerr)
		}
		return nil, fmt.Errorf("payment intent: %w", err)
	}

	if err := s.Orders.AttachIntent(ctx, ord.ID, intent.Ref, intent.ClientSecret); err != nil {
		return nil, fmt.Errorf("attach intent: %w", err)
	}

	res := &Result{
		OrderID:      ord.ID,
		ClientSecret: intent.ClientSecret,
		TotalCents:   total,
		Currency:     currency,
		ExpiresAt:    expiresAt,
	}
	if req.ExternalID != "" && s.Idem != nil {
		s.Idem.PutResult(ctx, req.ExternalID, res)
	}
	return res, nil
}

// MergeLines sums quantities of lines referencing the same variant, keeping
// first-seen order.
func MergeLines(in []LineInput) ([]LineInput, error) {
	idx := make(map[string]int, len(in))
	out := make([]LineInput, 0, len(in))
	for _, ln := range in {
		if ln.Qty <= 0 {
			return nil, fmt.Errorf("%w: variant %s qty %d", ErrInvalidQty, ln.VariantID, ln.Qty)
		}
		if i, ok := idx[ln.VariantID]; ok {
			out[i].Qty += ln.Qty
			continue
		}
		idx[ln.VariantID] = len(out)
		out = append(out, ln)
	}
	return out, nil
}

func snapshot(merged []LineInput, variants map[string]catalog.VariantInfo, storeID string) ([]orders.Line, int, string, error) {
	lines := make([]orders.Line, 0, len(merged))
	total := 0
	currency := ""
	for _, ln := range merged {
		v, ok := variants[ln.VariantID]
		if !ok {
			return nil, 0, "", fmt.Errorf("%w: %s", ErrUnknownVariant, ln.VariantID)
		}
		if !v.Sellable() {
			return nil, 0, "", fmt.Errorf("%w: %s", ErrVariantDisabled, ln.VariantID)
		}
		if v.StoreID != storeID {
			return nil, 0, "", fmt.Errorf("%w: variant %s belongs to store %s", ErrMixedStores, ln.VariantID, v.StoreID)
		}
		if currency == "" {
			currency = v.Currency
		} else if v.Currency != currency {
			return nil, 0, "", fmt.Errorf("%w: %s vs %s", ErrMixedCurrencies, v.Currency, currency)
		}
		lineTotal := v.PriceCents * ln.Qty
		total += lineTotal
		lines = append(lines, orders.Line{
			VariantID:      v.ID,
			SKU:            v.SKU,
			Title:          v.Title,
			UnitPriceCents: v.PriceCents,
			Qty:            ln.Qty,
			LineTotalCents: lineTotal,
		})
	}
	return lines, total, currency, nil
}
