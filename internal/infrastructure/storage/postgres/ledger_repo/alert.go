package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/alert"
	"stockledger/internal/infrastructure/storage/postgres"
)

const alertsTable = "stock_alerts"


type alertRow struct {
	ID              id.ID          `db:"id"`
	ProductID       id.ID          `db:"product_id"`
	VariantID       id.ID          `db:"variant_id"`
	WarehouseID     id.ID          `db:"warehouse_id"`
	Type            string         `db:"alert_type"`
	Threshold       types.Quantity `db:"threshold"`
	IsActive        bool           `db:"is_active"`
	LastTriggeredAt *time.Time     `db:"last_triggered_at"`
	LastResolvedAt  *time.Time     `db:"last_resolved_at"`
	CreatedAt       time.Time      `db:"created_at"`
}

var alertColumns = postgres.ExtractDBColumns[alertRow]()

func newAlertRow(a entity.StockAlert) alertRow {
	return alertRow{
		ID:              a.ID,
		ProductID:       a.ProductID,
		VariantID:       a.VariantID,
		WarehouseID:     a.WarehouseID,
		Type:            string(a.Type),
		Threshold:       a.Threshold,
		IsActive:        a.IsActive,
		LastTriggeredAt: a.LastTriggeredAt,
		LastResolvedAt:  a.LastResolvedAt,
		CreatedAt:       a.CreatedAt,
	}
}

func (r alertRow) toEntity() entity.StockAlert {
	return entity.StockAlert{
		ID:              r.ID,
		Triple:          entity.NewTriple(r.ProductID, r.VariantID, r.WarehouseID),
		Type:            entity.AlertType(r.Type),
		Threshold:       r.Threshold,
		IsActive:        r.IsActive,
		LastTriggeredAt: r.LastTriggeredAt,
		LastResolvedAt:  r.LastResolvedAt,
		CreatedAt:       r.CreatedAt,
	}
}

// AlertRepo implements alert.Repository.
type AlertRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ alert.Repository = (*AlertRepo)(nil)

// NewAlertRepo creates a new alert rule repository.
func NewAlertRepo(txm *postgres.TxManager) *AlertRepo {
	return &AlertRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *AlertRepo) Get(ctx context.Context, alertID id.ID) (entity.StockAlert, error) {
	list, err := r.selectAlerts(ctx, r.selectBase().Where(squirrel.Eq{"id": alertID}))
	if err != nil {
		return entity.StockAlert{}, err
	}
	if len(list) == 0 {
		return entity.StockAlert{}, apperror.NewNotFound("alert", alertID)
	}
	return list[0], nil
}

func (r *AlertRepo) ListByTriple(ctx context.Context, t entity.Triple) ([]entity.StockAlert, error) {
	return r.selectAlerts(ctx, r.selectBase().Where(tripleEq(t)).OrderBy("alert_type"))
}

// Save inserts the rule or replaces the state of the row with the same id.
// A second rule of the same type on a triple is rejected.
func (r *AlertRepo) Save(ctx context.Context, a entity.StockAlert) error {
	sql, args, err := r.builder.Insert(alertsTable).
		SetMap(postgres.StructToMap(newAlertRow(a))).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			threshold = EXCLUDED.threshold,
			is_active = EXCLUDED.is_active,
			last_triggered_at = EXCLUDED.last_triggered_at,
			last_resolved_at = EXCLUDED.last_resolved_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewValidation("an alert of this type already exists for the triple").
				WithDetail("triple", a.Triple.Key()).
				WithDetail("alert_type", string(a.Type)).
				WithCause(err)
		}
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (r *AlertRepo) Delete(ctx context.Context, alertID id.ID) error {
	sql, args, err := r.builder.Delete(alertsTable).Where(squirrel.Eq{"id": alertID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("alert", alertID)
	}
	return nil
}

func (r *AlertRepo) ListActive(ctx context.Context) ([]entity.StockAlert, error) {
	q := r.selectBase().
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("last_triggered_at DESC")
	return r.selectAlerts(ctx, q)
}

func (r *AlertRepo) selectBase() squirrel.SelectBuilder {
	return r.builder.Select(alertColumns...).From(alertsTable)
}

func (r *AlertRepo) selectAlerts(ctx context.Context, q squirrel.SelectBuilder) ([]entity.StockAlert, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []alertRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select alerts: %w", err)
	}

	out := make([]entity.StockAlert, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}
