package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

type fakePublisher struct {
	channels []string
	messages [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

type recordingNotifier struct {
	calls int
	err   error
}

func (n *recordingNotifier) Notify(context.Context, []entity.AlertTransition) error {
	n.calls++
	return n.err
}

func transition() entity.AlertTransition {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	t := entity.NewTriple(id.New(), id.Nil(), id.New())
	a := entity.NewStockAlert(t, entity.AlertLowStock, 5, now)
	tr, _ := a.Evaluate(2, now)
	return tr
}

func TestRedis_PublishesJSONPerTransition(t *testing.T) {
	pub := &fakePublisher{}
	n := NewRedis(pub, "")

	tr := transition()
	require.NoError(t, n.Notify(context.Background(), []entity.AlertTransition{tr, tr}))

	require.Len(t, pub.messages, 2)
	assert.Equal(t, DefaultChannel, pub.channels[0])

	var got entity.AlertTransition
	require.NoError(t, json.Unmarshal(pub.messages[0], &got))
	assert.Equal(t, entity.AlertTriggered, got.Change)
	assert.Equal(t, tr.Alert.ID, got.Alert.ID)
}

func TestRedis_PublishError(t *testing.T) {
	n := NewRedis(&fakePublisher{err: errors.New("connection refused")}, "alerts")

	err := n.Notify(context.Background(), []entity.AlertTransition{transition()})
	assert.ErrorContains(t, err, "connection refused")
}

func TestFanout_CallsEveryNotifier(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}

	err := Fanout{failing, ok, Log{}}.Notify(context.Background(), []entity.AlertTransition{transition()})

	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestFanout_SkipsEmptyBatch(t *testing.T) {
	n := &recordingNotifier{}
	require.NoError(t, Fanout{n}.Notify(context.Background(), nil))
	assert.Zero(t, n.calls)
}
