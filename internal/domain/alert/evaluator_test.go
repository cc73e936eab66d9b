package alert_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/reservation"
	"stockledger/internal/ledgertest"
)

func TestConfigureRule_EvaluatesImmediately(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()
	env.Seed(t, tr, 2)

	rule, err := env.Alerts.ConfigureRule(ctx, tr, entity.AlertLowStock, 5)
	require.NoError(t, err)
	assert.True(t, rule.IsActive)

	notified := env.Notifier.Transitions()
	require.Len(t, notified, 1)
	assert.Equal(t, rule.ID, notified[0].Alert.ID)

	updated, err := env.Alerts.ConfigureRule(ctx, tr, entity.AlertLowStock, 1)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, updated.ID, "re-thresholds the existing rule")
	assert.False(t, updated.IsActive)
	assert.NotNil(t, updated.LastResolvedAt)
	assert.Len(t, env.Notifier.Transitions(), 1, "clearing is not notified")
}

func TestConfigureRule_Validation(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Alerts.ConfigureRule(ctx, tr, "slow_moving", 1)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))

	_, err = env.Alerts.ConfigureRule(ctx, tr, entity.AlertLowStock, -1)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))

	_, err = env.Alerts.ConfigureRule(ctx, tr, entity.AlertOverstock, 0)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
}

func TestAlerts_FollowStockChanges(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()
	env.Seed(t, tr, 4)

	_, err := env.Alerts.ConfigureRule(ctx, tr, entity.AlertOutOfStock, 0)
	require.NoError(t, err)
	_, err = env.Alerts.ConfigureRule(ctx, tr, entity.AlertOverstock, 20)
	require.NoError(t, err)

	res, err := env.Reservations.Reserve(ctx, reservation.ReserveRequest{Triple: tr, Quantity: 4, Reference: ledgertest.OrderRef()})
	require.NoError(t, err)

	active, err := env.Alerts.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, entity.AlertOutOfStock, active[0].Type)

	require.NoError(t, env.Reservations.Release(ctx, res.ID, "cancelled"))
	active, err = env.Alerts.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = env.Inventory.Receive(ctx, inventory.ReceiveRequest{Triple: tr, Quantity: 16})
	require.NoError(t, err)
	active, err = env.Alerts.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, entity.AlertOverstock, active[0].Type)

	var changes []entity.AlertType
	for _, n := range env.Notifier.Transitions() {
		changes = append(changes, n.Alert.Type)
	}
	assert.Equal(t, []entity.AlertType{entity.AlertOutOfStock, entity.AlertOverstock}, changes)
}

func TestObserve_NothingNotifiedOnFailure(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()
	env.Seed(t, tr, 5)

	_, err := env.Alerts.ConfigureRule(ctx, tr, entity.AlertLowStock, 3)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = env.Alerts.Observe(ctx, func(ctx context.Context) error {
		return env.Guard.Serialize(ctx, tr.Key(), func(ctx context.Context) error {
			if _, err := env.Store.ApplyDelta(ctx, tr, 0, 4); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, env.Notifier.Transitions())
	rules, err := env.Alerts.Rules(ctx, tr)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].IsActive, "alert state rolled back with the transaction")
	assert.EqualValues(t, 0, env.Record(t, tr).Reserved)
}

func TestObserve_NotifierFailureDoesNotFailOperation(t *testing.T) {
	env := ledgertest.New(t)
	env.Notifier.Fails = errors.New("smtp down")
	ctx := context.Background()
	tr := ledgertest.Triple()
	env.Seed(t, tr, 5)

	_, err := env.Alerts.ConfigureRule(ctx, tr, entity.AlertLowStock, 3)
	require.NoError(t, err)

	_, err = env.Reservations.Reserve(ctx, reservation.ReserveRequest{Triple: tr, Quantity: 3, Reference: ledgertest.OrderRef()})
	assert.NoError(t, err)
	assert.Len(t, env.Notifier.Transitions(), 1)
}

func TestReevaluateAndRemoveRule(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	rule, err := env.Alerts.ConfigureRule(ctx, tr, entity.AlertLowStock, 0)
	require.NoError(t, err)
	assert.True(t, rule.IsActive, "no record means nothing is available")

	transitions, err := env.Alerts.Reevaluate(ctx, tr)
	require.NoError(t, err)
	assert.Empty(t, transitions, "state already up to date")

	require.NoError(t, env.Alerts.RemoveRule(ctx, rule.ID))
	rules, err := env.Alerts.Rules(ctx, tr)
	require.NoError(t, err)
	assert.Empty(t, rules)

	assert.True(t, apperror.IsNotFound(env.Alerts.RemoveRule(ctx, rule.ID)))
}
