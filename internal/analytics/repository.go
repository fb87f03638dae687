package analytics

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgRepository runs the analytics aggregates against PostgreSQL. Every query
// is a single statement on the pool, so each sees one committed snapshot.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

// ShipmentStats aggregates shipments created in the window.
func (r *PgRepository) ShipmentStats(ctx context.Context, f Filter) (ShipmentStats, error) {
	var out ShipmentStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
FROM receiving_shipments
WHERE created_at >= $1 AND created_at < $2`, f.From, f.To).Scan(&out.Total, &out.Completed)
	if err != nil {
		return ShipmentStats{}, err
	}
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(i.expected_quantity), 0), COALESCE(SUM(i.received_quantity), 0)
FROM receiving_items i
JOIN receiving_shipments s ON s.id = i.shipment_id
WHERE s.created_at >= $1 AND s.created_at < $2`, f.From, f.To).Scan(&out.ExpectedUnits, &out.ReceivedUnits)
	if err != nil {
		return ShipmentStats{}, err
	}
	return out, nil
}

// PickListStats aggregates pick lists created in the window.
func (r *PgRepository) PickListStats(ctx context.Context, f Filter) (PickListStats, error) {
	var out PickListStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
FROM pick_lists
WHERE created_at >= $1 AND created_at < $2 AND ($3 = '' OR zone = $3)`, f.From, f.To, f.Zone).Scan(&out.Total, &out.Completed)
	if err != nil {
		return PickListStats{}, err
	}
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(i.quantity_requested), 0), COALESCE(SUM(i.quantity_picked), 0)
FROM pick_list_items i
JOIN pick_lists p ON p.id = i.pick_list_id
WHERE p.created_at >= $1 AND p.created_at < $2 AND ($3 = '' OR i.zone = $3)`, f.From, f.To, f.Zone).Scan(&out.RequestedUnits, &out.PickedUnits)
	if err != nil {
		return PickListStats{}, err
	}
	return out, nil
}

// ScanStats counts scan rows in the window.
func (r *PgRepository) ScanStats(ctx context.Context, f Filter) (ScanStats, error) {
	var out ScanStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE s.status = 'success')
FROM inventory_scans s
LEFT JOIN warehouse_locations l ON l.id = s.location_id
WHERE s.scanned_at >= $1 AND s.scanned_at < $2 AND ($3 = '' OR l.zone = $3)`, f.From, f.To, f.Zone).Scan(&out.Total, &out.Successful)
	return out, err
}

// LocationUsage lists active locations with their fill level.
func (r *PgRepository) LocationUsage(ctx context.Context, f Filter) ([]LocationUsage, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, zone, capacity, current_capacity
FROM warehouse_locations
WHERE active AND ($1 = '' OR zone = $1)
ORDER BY code`, f.Zone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LocationUsage{}
	for rows.Next() {
		var u LocationUsage
		if err := rows.Scan(&u.LocationID, &u.Code, &u.Zone, &u.Capacity, &u.Current); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// PickedQuantities sums units picked per product on lines touched in the
// window, excess included.
func (r *PgRepository) PickedQuantities(ctx context.Context, f Filter) ([]ProductPicks, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, MIN(sku), SUM(quantity_picked + quantity_excess)
FROM pick_list_items
WHERE updated_at >= $1 AND updated_at < $2 AND quantity_picked > 0 AND ($3 = '' OR zone = $3)
GROUP BY product_id`, f.From, f.To, f.Zone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductPicks{}
	for rows.Next() {
		var p ProductPicks
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Picked); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LedgerRowAges lists stocked ledger rows with their unit price.
func (r *PgRepository) LedgerRowAges(ctx context.Context, f Filter) ([]RowAge, error) {
	rows, err := r.pool.Query(ctx, `SELECT pl.product_id, pl.location_id, pl.quantity, COALESCE(p.price, 0)::text, pl.last_updated
FROM product_locations pl
JOIN warehouse_locations l ON l.id = pl.location_id
LEFT JOIN products p ON p.id = pl.product_id
WHERE pl.quantity > 0 AND ($1 = '' OR l.zone = $1)`, f.Zone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RowAge{}
	for rows.Next() {
		var (
			row   RowAge
			price string
		)
		if err := rows.Scan(&row.ProductID, &row.LocationID, &row.Quantity, &price, &row.LastUpdated); err != nil {
			return nil, err
		}
		row.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
