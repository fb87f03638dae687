package picking

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
)

// Repository persists pick lists in PostgreSQL.
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
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const listColumns = `id, pick_list_number, order_id, COALESCE(order_number, ''), COALESCE(assignee_id, 0), status, priority,
COALESCE(zone, ''), total_items, items_picked, route_summary, created_by, created_at, updated_at, started_at, completed_at`

func scanPickList(row pgx.Row) (PickList, error) {
	var (
		list             PickList
		status, priority string
		summary          []byte
	)
	err := row.Scan(&list.ID, &list.Number, &list.OrderID, &list.OrderNumber, &list.AssigneeID, &status, &priority,
		&list.Zone, &list.TotalItems, &list.ItemsPicked, &summary, &list.CreatedBy, &list.CreatedAt, &list.UpdatedAt,
		&list.StartedAt, &list.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PickList{}, ErrPickListNotFound
		}
		return PickList{}, err
	}
	list.Status = ListStatus(status)
	list.Priority = Priority(priority)
	list.RouteSummary = RouteSummary{Zones: []string{}}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &list.RouteSummary); err != nil {
			return PickList{}, err
		}
	}
	return list, nil
}

const itemColumns = `id, pick_list_id, COALESCE(order_line_id, 0), product_id, sku, COALESCE(upc, ''), quantity_requested,
quantity_picked, quantity_excess, COALESCE(location_id, 0), COALESCE(location_code, ''), COALESCE(zone, ''), COALESCE(aisle, ''),
COALESCE(shelf, ''), COALESCE(position, ''), sequence_number, status, updated_at`

func listPickItems(ctx context.Context, q rowQuerier, pickListID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM pick_list_items WHERE pick_list_id = $1 ORDER BY sequence_number, id`, pickListID)
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
		if err := rows.Scan(&item.ID, &item.PickListID, &item.OrderLineID, &item.ProductID, &item.SKU, &item.UPC,
			&item.QuantityRequested, &item.QuantityPicked, &item.QuantityExcess, &item.LocationID, &item.LocationCode,
			&item.Zone, &item.Aisle, &item.Shelf, &item.Position, &item.SequenceNumber, &status, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Status = ItemStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepo) InsertPickList(ctx context.Context, list PickList) (int64, error) {
	summary, err := json.Marshal(list.RouteSummary)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.tx.QueryRow(ctx, `INSERT INTO pick_lists
(pick_list_number, order_id, order_number, assignee_id, status, priority, zone, total_items, items_picked, route_summary, created_by, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, 0, $9, $10, $11, $11) RETURNING id`,
		list.Number, list.OrderID, list.OrderNumber, db.NullInt64(list.AssigneeID), string(list.Status), string(list.Priority),
		list.Zone, list.TotalItems, summary, list.CreatedBy, list.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) InsertPickItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO pick_list_items
(pick_list_id, order_line_id, product_id, sku, upc, quantity_requested, quantity_picked, quantity_excess,
 location_id, location_code, zone, aisle, shelf, position, sequence_number, status, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, 0, 0, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $14, $15)
RETURNING id`,
		item.PickListID, db.NullInt64(item.OrderLineID), item.ProductID, item.SKU, item.UPC, item.QuantityRequested,
		db.NullInt64(item.LocationID), item.LocationCode, item.Zone, item.Aisle, item.Shelf, item.Position,
		item.SequenceNumber, string(item.Status), item.UpdatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) LockPickList(ctx context.Context, id int64) (PickList, error) {
	return scanPickList(r.tx.QueryRow(ctx, `SELECT `+listColumns+` FROM pick_lists WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) ListPickItems(ctx context.Context, pickListID int64) ([]Item, error) {
	return listPickItems(ctx, r.tx, pickListID)
}

func (r *txRepo) UpdatePickItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `UPDATE pick_list_items
SET quantity_picked = $2, quantity_excess = $3, status = $4, updated_at = $5
WHERE id = $1`, item.ID, item.QuantityPicked, item.QuantityExcess, string(item.Status), item.UpdatedAt)
	return err
}

func (r *txRepo) UpdateSequence(ctx context.Context, itemID int64, sequence int) error {
	_, err := r.tx.Exec(ctx, `UPDATE pick_list_items SET sequence_number = $2 WHERE id = $1`, itemID, sequence)
	return err
}

func (r *txRepo) UpdatePickList(ctx context.Context, list PickList) error {
	summary, err := json.Marshal(list.RouteSummary)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE pick_lists
SET status = $2, items_picked = $3, route_summary = $4, started_at = $5, completed_at = $6, updated_at = $7
WHERE id = $1`, list.ID, string(list.Status), list.ItemsPicked, summary, list.StartedAt, list.CompletedAt, list.UpdatedAt)
	return err
}

func (r *txRepo) SummarizePickItems(ctx context.Context, pickListID int64) (ItemSummary, error) {
	var summary ItemSummary
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'picked')
FROM pick_list_items WHERE pick_list_id = $1`, pickListID).Scan(&summary.Total, &summary.Picked)
	return summary, err
}

// GetPickList loads a pick list header.
func (r *Repository) GetPickList(ctx context.Context, id int64) (PickList, error) {
	return scanPickList(r.pool.QueryRow(ctx, `SELECT `+listColumns+` FROM pick_lists WHERE id = $1`, id))
}

// PickItems lists the items of a pick list in route order.
func (r *Repository) PickItems(ctx context.Context, pickListID int64) ([]Item, error) {
	return listPickItems(ctx, r.pool, pickListID)
}

// ListPickLists lists pick list headers, newest first.
func (r *Repository) ListPickLists(ctx context.Context, filter ListFilter) ([]PickList, error) {
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
	if filter.AssigneeID > 0 {
		add("assignee_id =", filter.AssigneeID)
	}
	if filter.Zone != "" {
		add("zone =", filter.Zone)
	}
	if !filter.From.IsZero() {
		add("created_at >=", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <", filter.To)
	}
	query := `SELECT ` + listColumns + ` FROM pick_lists`
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
	out := []PickList{}
	for rows.Next() {
		list, err := scanPickList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, list)
	}
	return out, rows.Err()
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)
