package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	calls    int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

var testTopics = Topics{TicketScanned: "checkin.ticket.scanned", EventReset: "checkin.event.reset"}

func TestPublishAttendanceRoutesByType(t *testing.T) {
	log := logger.NewNopLogger()
	w := &fakeWriter{}
	p := newProducer(w, testTopics, BreakerSettings(3, time.Minute, log), log)
	ctx := context.Background()

	scan := models.AttendanceEvent{Type: models.ScanEventType, EventID: "evt-1", TicketID: "t-1", Status: models.VerdictOK}
	reset := models.AttendanceEvent{Type: models.ResetEventType, EventID: "evt-1"}
	require.NoError(t, p.PublishAttendance(ctx, scan))
	require.NoError(t, p.PublishAttendance(ctx, reset))

	require.Len(t, w.messages, 2)
	assert.Equal(t, testTopics.TicketScanned, w.messages[0].Topic)
	assert.Equal(t, testTopics.EventReset, w.messages[1].Topic)
	assert.Equal(t, []byte("evt-1"), w.messages[0].Key)

	var decoded models.AttendanceEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, "t-1", decoded.TicketID)
	assert.Equal(t, models.VerdictOK, decoded.Status)

	assert.Error(t, p.PublishAttendance(ctx, models.AttendanceEvent{Type: "unknown", EventID: "evt-1"}))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	log := logger.NewNopLogger()
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, testTopics, BreakerSettings(2, time.Minute, log), log)
	ctx := context.Background()
	event := models.AttendanceEvent{Type: models.ScanEventType, EventID: "evt-1"}

	assert.Error(t, p.PublishAttendance(ctx, event))
	assert.Error(t, p.PublishAttendance(ctx, event))
	assert.Equal(t, gobreaker.StateOpen.String(), p.BreakerState())

	err := p.PublishAttendance(ctx, event)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, w.calls, "an open breaker does not touch the writer")
}

func TestDecodeAttendance(t *testing.T) {
	_, err := decodeAttendance([]byte(`{"type":"ticket.scanned"}`))
	assert.Error(t, err)

	_, err = decodeAttendance([]byte(`not json`))
	assert.Error(t, err)

	event, err := decodeAttendance([]byte(`{"type":"event.reset","eventId":"evt-9","attendedCount":0}`))
	require.NoError(t, err)
	assert.Equal(t, "evt-9", event.EventID)
	assert.Equal(t, models.ResetEventType, event.Type)
}
