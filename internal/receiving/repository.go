package receiving

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
)

// Repository persists shipments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*scanning.TxRepo
	tx pgx.Tx
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepo: scanning.NewTxRepository(tx), tx: tx})
	})
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const shipmentColumns = `id, shipment_number, supplier_id, po_number, status, total_items, items_received,
expected_arrival, actual_arrival, COALESCE(received_by, 0), COALESCE(notes, ''), created_by, created_at, updated_at, completed_at`

func scanShipment(row pgx.Row) (Shipment, error) {
	var (
		s      Shipment
		status string
	)
	err := row.Scan(&s.ID, &s.Number, &s.SupplierID, &s.PONumber, &status, &s.TotalItems, &s.ItemsReceived,
		&s.ExpectedArrival, &s.ActualArrival, &s.ReceivedBy, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrShipmentNotFound
		}
		return Shipment{}, err
	}
	s.Status = ShipmentStatus(status)
	return s, nil
}

const itemColumns = `id, shipment_id, product_id, sku, COALESCE(upc, ''), expected_quantity, received_quantity, match_status,
COALESCE(location_id, 0), COALESCE(discrepancy_notes, ''), discrepancy_quantity, updated_at`

func listItems(ctx context.Context, q rowQuerier, shipmentID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM receiving_items WHERE shipment_id = $1 ORDER BY id`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var (
			item   Item
			status string
		)
		if err := rows.Scan(&item.ID, &item.ShipmentID, &item.ProductID, &item.SKU, &item.UPC, &item.ExpectedQuantity,
			&item.ReceivedQuantity, &status, &item.LocationID, &item.DiscrepancyNotes, &item.DiscrepancyQuantity, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.MatchStatus = MatchStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepo) InsertShipment(ctx context.Context, s Shipment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receiving_shipments
(shipment_number, supplier_id, po_number, status, total_items, items_received, expected_arrival, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, NULLIF($7, ''), $8, $9, $9) RETURNING id`,
		s.Number, s.SupplierID, s.PONumber, string(s.Status), s.TotalItems, s.ExpectedArrival, s.Notes, s.CreatedBy, s.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receiving_items
(shipment_id, product_id, sku, upc, expected_quantity, received_quantity, match_status, location_id, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, 0, $6, $7, $8) RETURNING id`,
		item.ShipmentID, item.ProductID, item.SKU, item.UPC, item.ExpectedQuantity, string(item.MatchStatus),
		db.NullInt64(item.LocationID), item.UpdatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) LockShipment(ctx context.Context, id int64) (Shipment, error) {
	return scanShipment(r.tx.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM receiving_shipments WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) ListItems(ctx context.Context, shipmentID int64) ([]Item, error) {
	return listItems(ctx, r.tx, shipmentID)
}

func (r *txRepo) UpdateItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `UPDATE receiving_items
SET received_quantity = $2, match_status = $3, location_id = $4, discrepancy_notes = NULLIF($5, ''), discrepancy_quantity = $6, updated_at = $7
WHERE id = $1`, item.ID, item.ReceivedQuantity, string(item.MatchStatus), db.NullInt64(item.LocationID),
		item.DiscrepancyNotes, item.DiscrepancyQuantity, item.UpdatedAt)
	return err
}

func (r *txRepo) UpdateShipment(ctx context.Context, s Shipment) error {
	_, err := r.tx.Exec(ctx, `UPDATE receiving_shipments
SET status = $2, items_received = $3, actual_arrival = $4, received_by = $5, completed_at = $6, updated_at = $7
WHERE id = $1`, s.ID, string(s.Status), s.ItemsReceived, s.ActualArrival, db.NullInt64(s.ReceivedBy), s.CompletedAt, s.UpdatedAt)
	return err
}

func (r *txRepo) SummarizeItems(ctx context.Context, shipmentID int64) (ItemSummary, error) {
	var summary ItemSummary
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE match_status IN ('matched', 'excess'))
FROM receiving_items WHERE shipment_id = $1`, shipmentID).Scan(&summary.Total, &summary.Settled)
	return summary, err
}

// GetShipment loads a shipment header.
func (r *Repository) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	return scanShipment(r.pool.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM receiving_shipments WHERE id = $1`, id))
}

// ShipmentItems lists the items of a shipment.
func (r *Repository) ShipmentItems(ctx context.Context, shipmentID int64) ([]Item, error) {
	return listItems(ctx, r.pool, shipmentID)
}

// ListShipments lists shipment headers, newest first.
func (r *Repository) ListShipments(ctx context.Context, filter ListFilter) ([]Shipment, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, clause+" $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		add("status =", string(filter.Status))
	}
	if filter.SupplierID > 0 {
		add("supplier_id =", filter.SupplierID)
	}
	if !filter.From.IsZero() {
		add("created_at >=", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <", filter.To)
	}
	query := `SELECT ` + shipmentColumns + ` FROM receiving_shipments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Shipment{}
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)
