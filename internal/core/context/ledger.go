package context

import (
	"context"
)

// LedgerScope names the ledger operation a context serves. Log lines written
// under it carry these fields.
type LedgerScope struct {
	Operation     string
	Triple        string
	ReservationID string
}

type ledgerScopeKey struct{}

// WithLedgerScope layers scope over the scope already in ctx. Empty fields keep
// the outer value, so a transfer leg keeps its operation name.
func WithLedgerScope(ctx context.Context, scope LedgerScope) context.Context {
	cur := GetLedgerScope(ctx)
	if scope.Operation != "" {
		cur.Operation = scope.Operation
	}
	if scope.Triple != "" {
		cur.Triple = scope.Triple
	}
	if scope.ReservationID != "" {
		cur.ReservationID = scope.ReservationID
	}
	return context.WithValue(ctx, ledgerScopeKey{}, cur)
}

// GetLedgerScope returns the scope in ctx, zero if none.
func GetLedgerScope(ctx context.Context) LedgerScope {
	if v, ok := ctx.Value(ledgerScopeKey{}).(LedgerScope); ok {
		return v
	}
	return LedgerScope{}
}

// Fields renders the non-empty scope values as logger key-value pairs.
func (s LedgerScope) Fields() []any {
	var kv []any
	if s.Operation != "" {
		kv = append(kv, "operation", s.Operation)
	}
	if s.Triple != "" {
		kv = append(kv, "triple", s.Triple)
	}
	if s.ReservationID != "" {
		kv = append(kv, "reservation_id", s.ReservationID)
	}
	return kv
}
