package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "stock_movements"


// movementRow is the flat database shape of entity.Movement.
type movementRow struct {
	Seq            int64          `db:"seq"`
	ID             id.ID          `db:"id"`
	ProductID      id.ID          `db:"product_id"`
	VariantID      id.ID          `db:"variant_id"`
	WarehouseID    id.ID          `db:"warehouse_id"`
	Type           string         `db:"movement_type"`
	QuantityDelta  types.Quantity `db:"quantity_delta"`
	QuantityBefore types.Quantity `db:"quantity_before"`
	QuantityAfter  types.Quantity `db:"quantity_after"`
	UnitCost       *types.Money   `db:"unit_cost"`
	ReferenceType  string         `db:"reference_type"`
	ReferenceID    string         `db:"reference_id"`
	CreatedBy      string         `db:"created_by"`
	CreatedAt      time.Time      `db:"created_at"`
}

var movementColumns = postgres.ExtractDBColumns[movementRow]()

func newMovementRow(m entity.Movement) movementRow {
	return movementRow{
		Seq:            m.Seq,
		ID:             m.ID,
		ProductID:      m.ProductID,
		VariantID:      m.VariantID,
		WarehouseID:    m.WarehouseID,
		Type:           string(m.Type),
		QuantityDelta:  m.QuantityDelta,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		UnitCost:       m.UnitCost,
		ReferenceType:  string(m.Reference.Kind()),
		ReferenceID:    m.Reference.Ref(),
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
	}
}

func (r movementRow) toEntity() (entity.Movement, error) {
	ref, err := entity.DecodeReference(entity.ReferenceKind(r.ReferenceType), r.ReferenceID)
	if err != nil {
		return entity.Movement{}, fmt.Errorf("movement %s: %w", r.ID, err)
	}
	return entity.Movement{
		ID:             r.ID,
		Seq:            r.Seq,
		Triple:         entity.NewTriple(r.ProductID, r.VariantID, r.WarehouseID),
		Type:           entity.MovementType(r.Type),
		QuantityDelta:  r.QuantityDelta,
		QuantityBefore: r.QuantityBefore,
		QuantityAfter:  r.QuantityAfter,
		UnitCost:       r.UnitCost,
		Reference:      ref,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
	}, nil
}

// MovementRepo implements stock.MovementRepository. It only ever inserts.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ stock.MovementRepository = (*MovementRepo)(nil)

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts m and returns it with the assigned sequence number.
func (r *MovementRepo) Append(ctx context.Context, m entity.Movement) (entity.Movement, error) {
	values := postgres.StructToMap(newMovementRow(m))
	delete(values, "seq") // assigned by the BIGSERIAL

	sql, args, err := r.builder.Insert(movementsTable).
		SetMap(values).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return m, fmt.Errorf("build insert: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&m.Seq); err != nil {
		return m, fmt.Errorf("insert movement: %w", err)
	}
	return m, nil
}

// History returns the movements of a triple in append order.
func (r *MovementRepo) History(ctx context.Context, t entity.Triple, since *time.Time) ([]entity.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(tripleEq(t)).
		OrderBy("seq")
	if since != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *since})
	}
	return r.selectMovements(ctx, q)
}

// ByReference returns every movement written for a reference in append order.
func (r *MovementRepo) ByReference(ctx context.Context, ref entity.Reference) ([]entity.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"reference_type": string(ref.Kind()),
			"reference_id":   ref.Ref(),
		}).
		OrderBy("seq")
	return r.selectMovements(ctx, q)
}

func (r *MovementRepo) selectMovements(ctx context.Context, q squirrel.SelectBuilder) ([]entity.Movement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []movementRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	out := make([]entity.Movement, 0, len(rows))
	for _, row := range rows {
		m, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
