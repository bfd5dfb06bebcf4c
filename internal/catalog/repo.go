package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// VariantsByID loads variants with their product's store and disabled flags.
// Missing ids are simply absent from the result map.
func (r *Repo) VariantsByID(ctx context.Context, ids []string) (map[string]VariantInfo, error) {
	if len(ids) == 0 {
		return map[string]VariantInfo{}, nil
	}
	args := make([]any, 0, len(ids))
	params := ""
	for i, id := range ids {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT v.id, v.product_id, p.store_id, v.sku, v.title, v.price_cents, v.currency, v.disabled, p.disabled
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id IN (`+params+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]VariantInfo{}
	for rows.Next() {
		var v VariantInfo
		if err := rows.Scan(&v.ID, &v.ProductID, &v.StoreID, &v.SKU, &v.Title, &v.PriceCents, &v.Currency, &v.Disabled, &v.ProductDisabled); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context, storeID string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, store_id, title, description, image_urls, disabled, created_at, updated_at
		FROM products
		WHERE store_id = $1 AND NOT disabled
		ORDER BY title`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Title, &p.Description, &p.ImageURLs, &p.Disabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DisableProduct soft-disables; products referenced by orders are never deleted.
func (r *Repo) DisableProduct(ctx context.Context, productID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE products SET disabled = TRUE, updated_at = now() WHERE id = $1`, productID)
	return err
}
