package scanning

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// Repository persists the scan log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepo implements TxRepository on a pgx transaction.
type TxRepo struct {
	*ledger.TxRepo
	tx pgx.Tx
}

// NewTxRepository binds scan log and ledger operations to tx.
func NewTxRepository(tx pgx.Tx) *TxRepo {
	return &TxRepo{TxRepo: ledger.NewTxRepository(tx), tx: tx}
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// InsertScan appends a scan row.
func (r *TxRepo) InsertScan(ctx context.Context, scan Scan) (int64, error) {
	var metadata []byte
	if len(scan.Metadata) > 0 {
		raw, err := json.Marshal(scan.Metadata)
		if err != nil {
			return 0, err
		}
		metadata = raw
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_scans
(scan_type, actor_id, product_id, upc, sku, location_id, quantity, status, error_reason, session_id, reference_id, metadata, scanned_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13)
RETURNING id`,
		string(scan.ScanType), scan.ActorID, db.NullInt64(scan.ProductID), scan.UPC, scan.SKU,
		db.NullInt64(scan.LocationID), scan.Quantity, string(scan.Status), scan.ErrorReason,
		scan.SessionID, db.NullInt64(scan.ReferenceID), metadata, scan.ScannedAt).Scan(&id)
	return id, err
}

// History lists scan rows, newest first.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Scan, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, clause+" $"+strconv.Itoa(len(args)))
	}
	if filter.SessionID != "" {
		add("session_id =", filter.SessionID)
	}
	if filter.ActorID > 0 {
		add("actor_id =", filter.ActorID)
	}
	if filter.ScanType != "" {
		add("scan_type =", string(filter.ScanType))
	}
	if filter.Status != "" {
		add("status =", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("scanned_at >=", filter.From)
	}
	if !filter.To.IsZero() {
		add("scanned_at <", filter.To)
	}
	query := `SELECT id, scan_type, actor_id, COALESCE(product_id, 0), COALESCE(upc, ''), COALESCE(sku, ''),
COALESCE(location_id, 0), quantity, status, COALESCE(error_reason, ''), session_id, COALESCE(reference_id, 0), metadata, scanned_at
FROM inventory_scans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit)
	query += " ORDER BY scanned_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Scan{}
	for rows.Next() {
		var (
			scan           Scan
			scanType, stat string
			metadata       []byte
		)
		if err := rows.Scan(&scan.ID, &scanType, &scan.ActorID, &scan.ProductID, &scan.UPC, &scan.SKU,
			&scan.LocationID, &scan.Quantity, &stat, &scan.ErrorReason, &scan.SessionID, &scan.ReferenceID,
			&metadata, &scan.ScannedAt); err != nil {
			return nil, err
		}
		scan.ScanType = ScanType(scanType)
		scan.Status = Status(stat)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &scan.Metadata)
		}
		out = append(out, scan)
	}
	return out, rows.Err()
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*TxRepo)(nil)
)
