package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload []byte
	qos     byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, payload, qos})
	return nil
}

func TestNotifier_Send(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, nil)

	require.NoError(t, n.Send(context.Background(), " Washer ", "Laundry is done"))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "graylogic/notify", pub.msgs[0].topic)
	assert.Equal(t, byte(1), pub.msgs[0].qos)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &msg))
	assert.Equal(t, "Washer", msg.Title)
	assert.Equal(t, "Laundry is done", msg.Body)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNotifier_Errors(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, nil)

	assert.ErrorIs(t, n.Send(context.Background(), " ", ""), ErrEmptyNotification)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Send(ctx, "t", "b"), context.Canceled)

	offline := errors.New("not connected")
	pub.err = offline
	assert.ErrorIs(t, n.Send(context.Background(), "t", "b"), offline)
}
