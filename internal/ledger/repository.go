package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// TxRepo implements TxRepository on a pgx transaction.
type TxRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger's transactional operations to tx.
func NewTxRepository(tx pgx.Tx) *TxRepo {
	return &TxRepo{tx: tx}
}

const locationColumns = `l.id, l.code, l.aisle, l.shelf, l.position, l.zone, l.location_type, l.capacity, l.current_capacity, l.active, l.created_at, l.updated_at`

func scanLocation(row pgx.Row) (Location, error) {
	var (
		loc Location
		typ string
	)
	err := row.Scan(&loc.ID, &loc.Code, &loc.Aisle, &loc.Shelf, &loc.Position, &loc.Zone, &typ,
		&loc.Capacity, &loc.CurrentCapacity, &loc.Active, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrLocationNotFound
		}
		return Location{}, err
	}
	loc.Type = LocationType(typ)
	return loc, nil
}

// GetLocation loads a location without locking it.
func (r *TxRepo) GetLocation(ctx context.Context, id int64) (Location, error) {
	return scanLocation(r.tx.QueryRow(ctx, `SELECT `+locationColumns+` FROM warehouse_locations l WHERE l.id = $1`, id))
}

// LockLocation loads a location and holds its row lock.
func (r *TxRepo) LockLocation(ctx context.Context, id int64) (Location, error) {
	return scanLocation(r.tx.QueryRow(ctx, `SELECT `+locationColumns+` FROM warehouse_locations l WHERE l.id = $1 FOR UPDATE`, id))
}

// LockProductLocation locks the ledger row, creating it at quantity zero when
// absent. The first row created for a product becomes its primary location.
// Concurrent creators converge on the same row through ON CONFLICT.
func (r *TxRepo) LockProductLocation(ctx context.Context, productID, locationID int64) (ProductLocation, bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO product_locations (product_id, location_id, quantity, is_primary, last_updated)
SELECT $1, $2, 0, NOT EXISTS (SELECT 1 FROM product_locations WHERE product_id = $1), NOW()
ON CONFLICT (product_id, location_id) DO NOTHING`, productID, locationID)
	if err != nil {
		return ProductLocation{}, false, err
	}
	var row ProductLocation
	err = r.tx.QueryRow(ctx, `SELECT product_id, location_id, quantity, is_primary, last_updated
FROM product_locations WHERE product_id = $1 AND location_id = $2 FOR UPDATE`, productID, locationID).
		Scan(&row.ProductID, &row.LocationID, &row.Quantity, &row.IsPrimary, &row.LastUpdated)
	if err != nil {
		return ProductLocation{}, false, err
	}
	return row, tag.RowsAffected() == 1, nil
}

// SetProductLocationQuantity stores the new quantity of a locked row.
func (r *TxRepo) SetProductLocationQuantity(ctx context.Context, productID, locationID int64, qty int, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE product_locations SET quantity = $3, last_updated = $4
WHERE product_id = $1 AND location_id = $2`, productID, locationID, qty, at)
	return err
}

// AdjustLocationCapacity shifts the occupied capacity counter of a location.
func (r *TxRepo) AdjustLocationCapacity(ctx context.Context, locationID int64, delta int) error {
	_, err := r.tx.Exec(ctx, `UPDATE warehouse_locations SET current_capacity = GREATEST(current_capacity + $2, 0), updated_at = NOW()
WHERE id = $1`, locationID, delta)
	return err
}

// InsertLocation creates a location.
func (r *TxRepo) InsertLocation(ctx context.Context, loc Location) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_locations (code, aisle, shelf, position, zone, location_type, capacity, current_capacity, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $9) RETURNING id`,
		loc.Code, loc.Aisle, loc.Shelf, loc.Position, loc.Zone, string(loc.Type), loc.Capacity, loc.Active, loc.CreatedAt).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.Validationf("location code %s already exists", loc.Code)
	}
	return id, err
}

// UpdateLocation persists the mutable location fields.
func (r *TxRepo) UpdateLocation(ctx context.Context, loc Location) error {
	_, err := r.tx.Exec(ctx, `UPDATE warehouse_locations
SET aisle = $2, shelf = $3, position = $4, zone = $5, location_type = $6, capacity = $7, active = $8, updated_at = $9
WHERE id = $1`, loc.ID, loc.Aisle, loc.Shelf, loc.Position, loc.Zone, string(loc.Type), loc.Capacity, loc.Active, loc.UpdatedAt)
	return err
}

// SetPrimary moves the primary flag of a product to locationID.
func (r *TxRepo) SetPrimary(ctx context.Context, productID, locationID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE product_locations SET is_primary = (location_id = $2) WHERE product_id = $1`, productID, locationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM product_locations WHERE product_id = $1 AND location_id = $2)`, productID, locationID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrRowNotFound
	}
	return nil
}

// InsertAuditLog writes an audit row in the same transaction.
func (r *TxRepo) InsertAuditLog(ctx context.Context, log shared.AuditLog) error {
	return shared.WriteAuditLog(ctx, r.tx, log)
}

// GetLocation loads a location.
func (r *Repository) GetLocation(ctx context.Context, id int64) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM warehouse_locations l WHERE l.id = $1`, id))
}

// ListLocations lists locations ordered by code.
func (r *Repository) ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error) {
	var (
		where []string
		args  []any
	)
	if filter.Zone != "" {
		args = append(args, filter.Zone)
		where = append(where, "l.zone = $"+itoa(len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, "l.location_type = $"+itoa(len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "l.active")
	}
	query := `SELECT ` + locationColumns + ` FROM warehouse_locations l`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY l.code"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// ReceivingLocations lists active receiving-type locations.
func (r *Repository) ReceivingLocations(ctx context.Context) ([]Location, error) {
	return r.ListLocations(ctx, LocationFilter{Type: LocationReceiving, ActiveOnly: true})
}

const viewQuery = `SELECT pl.product_id, pl.location_id, pl.quantity, pl.is_primary, pl.last_updated, ` + locationColumns + `
FROM product_locations pl JOIN warehouse_locations l ON l.id = pl.location_id`

func (r *Repository) views(ctx context.Context, query string, args ...any) ([]ProductLocationView, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductLocationView{}
	for rows.Next() {
		var (
			v   ProductLocationView
			typ string
		)
		if err := rows.Scan(&v.ProductID, &v.LocationID, &v.Quantity, &v.IsPrimary, &v.LastUpdated,
			&v.Location.ID, &v.Location.Code, &v.Location.Aisle, &v.Location.Shelf, &v.Location.Position,
			&v.Location.Zone, &typ, &v.Location.Capacity, &v.Location.CurrentCapacity, &v.Location.Active,
			&v.Location.CreatedAt, &v.Location.UpdatedAt); err != nil {
			return nil, err
		}
		v.Location.Type = LocationType(typ)
		out = append(out, v)
	}
	return out, rows.Err()
}

// LocationsForProduct lists ledger rows of a product, primary first.
func (r *Repository) LocationsForProduct(ctx context.Context, productID int64) ([]ProductLocationView, error) {
	return r.views(ctx, viewQuery+` WHERE pl.product_id = $1 ORDER BY pl.is_primary DESC, l.code`, productID)
}

// InventoryAtLocation lists ledger rows at a location.
func (r *Repository) InventoryAtLocation(ctx context.Context, locationID int64) ([]ProductLocationView, error) {
	return r.views(ctx, viewQuery+` WHERE pl.location_id = $1 ORDER BY pl.product_id`, locationID)
}

// GetProductLocation loads one ledger row.
func (r *Repository) GetProductLocation(ctx context.Context, productID, locationID int64) (ProductLocation, error) {
	var row ProductLocation
	err := r.pool.QueryRow(ctx, `SELECT product_id, location_id, quantity, is_primary, last_updated
FROM product_locations WHERE product_id = $1 AND location_id = $2`, productID, locationID).
		Scan(&row.ProductID, &row.LocationID, &row.Quantity, &row.IsPrimary, &row.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductLocation{}, ErrRowNotFound
	}
	return row, err
}

// InventorySummary aggregates totals per product.
func (r *Repository) InventorySummary(ctx context.Context, filter SummaryFilter) ([]ProductSummary, error) {
	var (
		where []string
		args  []any
	)
	if filter.Zone != "" {
		args = append(args, filter.Zone)
		where = append(where, "l.zone = $"+itoa(len(args)))
	}
	if filter.LocationType != "" {
		args = append(args, string(filter.LocationType))
		where = append(where, "l.location_type = $"+itoa(len(args)))
	}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		where = append(where, "pl.product_id = $"+itoa(len(args)))
	}
	query := `SELECT pl.product_id, COALESCE(SUM(pl.quantity), 0), COUNT(*), MAX(pl.last_updated)
FROM product_locations pl JOIN warehouse_locations l ON l.id = pl.location_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " GROUP BY pl.product_id"
	if filter.OnlyInStock {
		query += " HAVING SUM(pl.quantity) > 0"
	}
	query += " ORDER BY pl.product_id"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductSummary{}
	for rows.Next() {
		var s ProductSummary
		if err := rows.Scan(&s.ProductID, &s.TotalQuantity, &s.LocationCount, &s.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*TxRepo)(nil)
)
