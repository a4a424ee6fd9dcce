package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

type fakeWriter struct {
	failures int
	calls    int
	written  []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.calls <= w.failures {
		return errors.New("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() Event {
	req := &models.ClaimRequest{
		ID:          "req-1",
		ItemID:      "item-1",
		ItemTitle:   "Casio fx-991",
		RequesterID: "bob",
		OwnerID:     "alice",
		Status:      models.ClaimStatusPending,
	}
	return NewEvent(EventClaimCreated, req, time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
}

func TestKafkaPublisher_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil)

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.written, 1)

	msg := w.written[0]
	assert.Equal(t, "alice", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "claim.created", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, models.ClaimStatusPending, got.Status)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Retries(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newKafkaPublisher(w, nil)
	p.backoff = time.Millisecond

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 1)
}

func TestKafkaPublisher_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: maxAttempts}
	p := newKafkaPublisher(w, nil)
	p.backoff = time.Millisecond

	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, maxAttempts, w.calls)
}

func TestKafkaPublisher_StopsOnCancel(t *testing.T) {
	w := &fakeWriter{failures: maxAttempts}
	p := newKafkaPublisher(w, nil)
	p.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, testEvent())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, w.calls)
}
