// Package ledger_repo provides PostgreSQL implementations of the ledger repositories.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/postgres"
)

const recordsTable = "stock_records"

var recordColumns = postgres.ExtractDBColumns[entity.StockRecord]()

// RecordRepo implements stock.RecordRepository.
type RecordRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ stock.RecordRepository = (*RecordRepo)(nil)

// NewRecordRepo creates a new stock record repository.
func NewRecordRepo(txm *postgres.TxManager) *RecordRepo {
	return &RecordRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the record of a triple, or a zero record (version 0) if none exists.
func (r *RecordRepo) Get(ctx context.Context, t entity.Triple) (entity.StockRecord, error) {
	sql, args, err := r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(tripleEq(t)).
		ToSql()
	if err != nil {
		return entity.StockRecord{}, fmt.Errorf("build query: %w", err)
	}

	var rec entity.StockRecord
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.EmptyRecord(t), nil
		}
		return entity.StockRecord{}, fmt.Errorf("get stock record: %w", err)
	}
	return rec, nil
}

// Save writes rec if the stored version still equals rec.Version.
// Version 0 means the record must not exist yet.
func (r *RecordRepo) Save(ctx context.Context, rec entity.StockRecord) (entity.StockRecord, error) {
	next := rec
	next.Version = rec.Version + 1

	var q squirrel.Sqlizer
	if rec.Version == 0 {
		q = r.builder.Insert(recordsTable).
			SetMap(postgres.StructToMap(next)).
			Suffix("ON CONFLICT (product_id, variant_id, warehouse_id) DO NOTHING")
	} else {
		q = r.builder.Update(recordsTable).
			SetMap(map[string]any{
				"on_hand":          next.OnHand,
				"reserved":         next.Reserved,
				"average_cost":     next.AverageCost,
				"last_movement_at": next.LastMovementAt,
				"updated_at":       next.UpdatedAt,
				"version":          next.Version,
			}).
			Where(tripleEq(rec.Triple)).
			Where(squirrel.Eq{"version": rec.Version})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return rec, fmt.Errorf("build save: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return rec, fmt.Errorf("save stock record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := r.Get(ctx, rec.Triple)
		if getErr != nil {
			return rec, getErr
		}
		return rec, apperror.NewInconsistentLedger(rec.Triple.Key(), rec.Version, current.Version)
	}
	return next, nil
}

// ListByWarehouse returns the records of a warehouse ordered by product and variant.
func (r *RecordRepo) ListByWarehouse(ctx context.Context, warehouseID id.ID, filter stock.RecordFilter) ([]entity.StockRecord, error) {
	q := r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID}).
		OrderBy("product_id", "variant_id")

	if filter.ExcludeZero {
		q = q.Where(squirrel.Or{squirrel.NotEq{"on_hand": 0}, squirrel.NotEq{"reserved": 0}})
	}
	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}

	return r.selectRecords(ctx, q)
}

// ListByProduct returns the records of a product across warehouses.
func (r *RecordRepo) ListByProduct(ctx context.Context, productID id.ID) ([]entity.StockRecord, error) {
	q := r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("warehouse_id", "variant_id")

	return r.selectRecords(ctx, q)
}

func (r *RecordRepo) selectRecords(ctx context.Context, q squirrel.SelectBuilder) ([]entity.StockRecord, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []entity.StockRecord
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &records, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock records: %w", err)
	}
	return records, nil
}

func tripleEq(t entity.Triple) squirrel.Eq {
	return squirrel.Eq{
		"product_id":   t.ProductID,
		"variant_id":   t.VariantID,
		"warehouse_id": t.WarehouseID,
	}
}
