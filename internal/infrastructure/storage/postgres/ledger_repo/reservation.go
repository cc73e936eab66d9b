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
	"stockledger/internal/domain/reservation"
	"stockledger/internal/infrastructure/storage/postgres"
)

const reservationsTable = "stock_reservations"


type reservationRow struct {
	ID            id.ID          `db:"id"`
	ProductID     id.ID          `db:"product_id"`
	VariantID     id.ID          `db:"variant_id"`
	WarehouseID   id.ID          `db:"warehouse_id"`
	Quantity      types.Quantity `db:"quantity"`
	ReferenceType string         `db:"reference_type"`
	ReferenceID   string         `db:"reference_id"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	ExpiresAt     *time.Time     `db:"expires_at"`
	ClosedAt      *time.Time     `db:"closed_at"`
	ReleaseReason string         `db:"release_reason"`
}

var reservationColumns = postgres.ExtractDBColumns[reservationRow]()

func newReservationRow(res entity.Reservation) reservationRow {
	return reservationRow{
		ID:            res.ID,
		ProductID:     res.ProductID,
		VariantID:     res.VariantID,
		WarehouseID:   res.WarehouseID,
		Quantity:      res.Quantity,
		ReferenceType: string(res.Reference.Kind()),
		ReferenceID:   res.Reference.Ref(),
		Status:        string(res.Status),
		CreatedAt:     res.CreatedAt,
		ExpiresAt:     res.ExpiresAt,
		ClosedAt:      res.ClosedAt,
		ReleaseReason: res.ReleaseReason,
	}
}

func (r reservationRow) toEntity() (entity.Reservation, error) {
	ref, err := entity.DecodeReference(entity.ReferenceKind(r.ReferenceType), r.ReferenceID)
	if err != nil {
		return entity.Reservation{}, fmt.Errorf("reservation %s: %w", r.ID, err)
	}
	return entity.Reservation{
		ID:            r.ID,
		Triple:        entity.NewTriple(r.ProductID, r.VariantID, r.WarehouseID),
		Quantity:      r.Quantity,
		Reference:     ref,
		Status:        entity.ReservationStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		ClosedAt:      r.ClosedAt,
		ReleaseReason: r.ReleaseReason,
	}, nil
}

// ReservationRepo implements reservation.Repository.
type ReservationRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reservation.Repository = (*ReservationRepo)(nil)

// NewReservationRepo creates a new reservation repository.
func NewReservationRepo(txm *postgres.TxManager) *ReservationRepo {
	return &ReservationRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ReservationRepo) Create(ctx context.Context, res entity.Reservation) error {
	sql, args, err := r.builder.Insert(reservationsTable).
		SetMap(postgres.StructToMap(newReservationRow(res))).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewValidation("a held reservation already exists for this reference").
				WithDetail("triple", res.Triple.Key()).
				WithCause(err)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// Get returns a reservation or a NotFound error.
func (r *ReservationRepo) Get(ctx context.Context, reservationID id.ID) (entity.Reservation, error) {
	list, err := r.selectReservations(ctx, r.selectBase().Where(squirrel.Eq{"id": reservationID}))
	if err != nil {
		return entity.Reservation{}, err
	}
	if len(list) == 0 {
		return entity.Reservation{}, apperror.NewNotFound("reservation", reservationID)
	}
	return list[0], nil
}

// Close writes the terminal state only if the row is still held.
func (r *ReservationRepo) Close(ctx context.Context, res entity.Reservation) error {
	sql, args, err := r.builder.Update(reservationsTable).
		Set("status", string(res.Status)).
		Set("closed_at", res.ClosedAt).
		Set("release_reason", res.ReleaseReason).
		Where(squirrel.Eq{"id": res.ID, "status": string(entity.ReservationHeld)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("close reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := r.Get(ctx, res.ID)
		if getErr != nil {
			return getErr
		}
		return apperror.NewInconsistentLedger(current.Triple.Key(), 0, 0).
			WithDetail("reservation_id", res.ID).
			WithDetail("status", string(current.Status))
	}
	return nil
}

// FindHeld returns the held reservation for the triple and reference, or nil.
func (r *ReservationRepo) FindHeld(ctx context.Context, t entity.Triple, ref entity.Reference) (*entity.Reservation, error) {
	q := r.selectBase().
		Where(tripleEq(t)).
		Where(squirrel.Eq{
			"reference_type": string(ref.Kind()),
			"reference_id":   ref.Ref(),
			"status":         string(entity.ReservationHeld),
		}).
		Limit(1)

	list, err := r.selectReservations(ctx, q)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// ListExpired returns up to limit held reservations past their expiry, oldest first.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	q := r.selectBase().
		Where(squirrel.Eq{"status": string(entity.ReservationHeld)}).
		Where(squirrel.LtOrEq{"expires_at": now}).
		OrderBy("expires_at", "id").
		Limit(uint64(limit))
	return r.selectReservations(ctx, q)
}

func (r *ReservationRepo) ListByReference(ctx context.Context, ref entity.Reference) ([]entity.Reservation, error) {
	q := r.selectBase().
		Where(squirrel.Eq{
			"reference_type": string(ref.Kind()),
			"reference_id":   ref.Ref(),
		}).
		OrderBy("created_at", "id")
	return r.selectReservations(ctx, q)
}

func (r *ReservationRepo) selectBase() squirrel.SelectBuilder {
	return r.builder.Select(reservationColumns...).From(reservationsTable)
}

func (r *ReservationRepo) selectReservations(ctx context.Context, q squirrel.SelectBuilder) ([]entity.Reservation, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []reservationRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}

	out := make([]entity.Reservation, 0, len(rows))
	for _, row := range rows {
		res, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}
