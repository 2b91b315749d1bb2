package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/internal/domain/service"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() *service.ResolutionEvent {
	return &service.ResolutionEvent{
		RequestID:    "req-1",
		ChannelID:    10,
		AttachmentID: 20,
		Filename:     "file.png",
		Outcome:      service.OutcomeRefreshed,
		ExpiresAt:    time.Unix(0x65b0, 0).UTC(),
		ResolvedAt:   time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil)

	require.NoError(t, p.PublishResolution(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("a/14"), w.msgs[0].Key)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "refreshed", decoded["outcome"])
	assert.Equal(t, "file.png", decoded["filename"])
	assert.Equal(t, "req-1", decoded["request_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: stderrors.New("broker down")}
	p := newKafkaPublisher(w, nil)
	assert.Error(t, p.PublishResolution(context.Background(), testEvent()))
}

func TestNewPublisher(t *testing.T) {
	assert.IsType(t, NoopPublisher{}, NewPublisher(&config.KafkaConfig{}, nil))

	p := NewPublisher(&config.KafkaConfig{Enabled: true, Brokers: []string{"127.0.0.1:9092"}, Topic: "t"}, nil)
	assert.IsType(t, &KafkaPublisher{}, p)
	assert.NoError(t, p.Close())
}
