package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStock_Details(t *testing.T) {
	err := NewInsufficientStock("p:v:w", 5, 2)

	assert.Equal(t, CodeInsufficientStock, err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, int64(3), err.Details["shortfall"])
	assert.Equal(t, "p:v:w", err.Details["triple"])
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"inconsistent ledger", NewInconsistentLedger("k", 1, 2), true},
		{"lock timeout", NewLockTimeout("k"), true},
		{"wrapped lock timeout", fmt.Errorf("reserve: %w", NewLockTimeout("k")), true},
		{"insufficient stock", NewInsufficientStock("k", 1, 0), false},
		{"invalid state", NewInvalidState("reservation", "x", "released", "commit"), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestGetHTTPStatus_UnknownErrorIsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("x")))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(NewInvalidState("reservation", 1, "held", "commit")))
}

func TestAppError_UnwrapCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewInternal(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}
