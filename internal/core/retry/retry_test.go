package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/apperror"
)

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return apperror.NewInconsistentLedger("k", 1, 2)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnBusinessError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return apperror.NewInsufficientStock("k", 2, 1)
	})

	assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock))
	assert.Equal(t, 1, calls)
}

func TestDo_SurfacesAfterBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return apperror.NewLockTimeout("k")
	})

	assert.True(t, apperror.IsRetryable(err))
	assert.Equal(t, 4, calls, "first attempt plus three retries")
}

func TestDo_PlainErrorIsPermanent(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), fastConfig(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
}
