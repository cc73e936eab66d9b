package memory

import (
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/stock"
)

// RecordRepo implements stock.RecordRepository.
type RecordRepo struct {
	db *DB
}

var _ stock.RecordRepository = (*RecordRepo)(nil)

func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

func (r *RecordRepo) Get(_ context.Context, t entity.Triple) (entity.StockRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if rec, ok := r.db.records[t.Key()]; ok {
		return rec, nil
	}
	return entity.EmptyRecord(t), nil
}

func (r *RecordRepo) Save(ctx context.Context, rec entity.StockRecord) (entity.StockRecord, error) {
	key := rec.Triple.Key()
	next := rec
	next.Version++

	err := r.db.write(ctx, func() (func(), error) {
		prev, existed := r.db.records[key]
		if prev.Version != rec.Version {
			return nil, apperror.NewInconsistentLedger(key, rec.Version, prev.Version)
		}
		r.db.records[key] = next
		return func() {
			if existed {
				r.db.records[key] = prev
			} else {
				delete(r.db.records, key)
			}
		}, nil
	})
	if err != nil {
		return rec, err
	}
	return next, nil
}

func (r *RecordRepo) ListByWarehouse(_ context.Context, warehouseID id.ID, filter stock.RecordFilter) ([]entity.StockRecord, error) {
	products := make(map[id.ID]struct{}, len(filter.ProductIDs))
	for _, p := range filter.ProductIDs {
		products[p] = struct{}{}
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []entity.StockRecord
	for _, rec := range r.db.records {
		if rec.WarehouseID != warehouseID {
			continue
		}
		if filter.ExcludeZero && rec.OnHand == 0 && rec.Reserved == 0 {
			continue
		}
		if len(products) > 0 {
			if _, ok := products[rec.ProductID]; !ok {
				continue
			}
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (r *RecordRepo) ListByProduct(_ context.Context, productID id.ID) ([]entity.StockRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []entity.StockRecord
	for _, rec := range r.db.records {
		if rec.ProductID == productID {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(recs []entity.StockRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key() < recs[j].Key() })
}
