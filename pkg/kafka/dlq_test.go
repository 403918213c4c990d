package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "backoffice.dlq", DLQTopicPrefix)

	tests := []struct {
		original string
		want     string
	}{
		{"pos.order.completed", "backoffice.dlq.pos.order.completed"},
		{"backoffice.promotion.created", "backoffice.dlq.backoffice.promotion.created"},
		{"orders", "backoffice.dlq.orders"},
		{"", "backoffice.dlq."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DLQTopic(tt.original), tt.original)
	}
}

func TestDLQProducer_Publish_CopiesMessageWithCoordinates(t *testing.T) {
	w := &recordingWriter{}
	d := &DLQProducer{writer: w, logger: testLogger()}

	original := kafka.Message{
		Topic:     "pos.order.completed",
		Partition: 2,
		Offset:    41,
		Key:       []byte("ord-9"),
		Value:     []byte(`{"event_id":"e1"}`),
		Headers:   []kafka.Header{{Key: "source", Value: []byte("pos")}},
	}

	err := d.Publish(context.Background(), original, errors.New("promotion not found"), "promotion-service")
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "backoffice.dlq.pos.order.completed", msg.Topic)
	assert.Equal(t, original.Key, msg.Key)
	assert.Equal(t, original.Value, msg.Value)
	assert.Equal(t, "pos", headerValue(msg, "source"))
	assert.Equal(t, "pos.order.completed", headerValue(msg, "dlq.original_topic"))
	assert.Equal(t, "2", headerValue(msg, "dlq.original_partition"))
	assert.Equal(t, "41", headerValue(msg, "dlq.original_offset"))
	assert.Equal(t, "promotion-service", headerValue(msg, "dlq.consumer_group"))
	assert.Equal(t, "promotion not found", headerValue(msg, "dlq.error"))
}

func TestDLQProducer_Publish_WriterError(t *testing.T) {
	d := &DLQProducer{writer: &recordingWriter{err: errors.New("broker down")}, logger: testLogger()}

	err := d.Publish(context.Background(), kafka.Message{Topic: "pos.order.completed"}, nil, "g")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoffice.dlq.pos.order.completed")
}
