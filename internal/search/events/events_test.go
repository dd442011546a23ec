package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"recon/internal/search/models"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func testEvent() Lifecycle {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	s, _ := models.NewSearch(uuid.New(), models.SearchTypeEmail, "a@example.com", now)
	msg := "1 source failed"
	s.Status = models.SearchStatusCompleted
	s.ResultsCount = 2
	s.ErrorMessage = &msg
	return FromSearch(TerminalType(s.Status), s, 1, now)
}

func TestKafkaPublish(t *testing.T) {
	p := &recordingProducer{}
	event := testEvent()

	require.NoError(t, NewKafka(p, "recon.search.lifecycle").Publish(context.Background(), event))
	require.Len(t, p.records, 1)

	rec := p.records[0]
	assert.Equal(t, "recon.search.lifecycle", rec.Topic)
	assert.Equal(t, event.SearchID.String(), string(rec.Key))
	assert.Equal(t, "search.completed", string(rec.Headers[0].Value))

	var decoded Lifecycle
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, event.SearchID, decoded.SearchID)
	assert.Equal(t, 2, decoded.ResultsCount)
	assert.Equal(t, 1, decoded.FailedCount)
	assert.Equal(t, "1 source failed", *decoded.ErrorMessage)
}

func TestKafkaPublishError(t *testing.T) {
	p := &recordingProducer{err: errors.New("broker unavailable")}
	err := NewKafka(p, "t").Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
}

func TestTerminalType(t *testing.T) {
	assert.Equal(t, TypeSearchCompleted, TerminalType(models.SearchStatusCompleted))
	assert.Equal(t, TypeSearchFailed, TerminalType(models.SearchStatusFailed))
}

func TestLogPublish(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, NewLog(logger).Publish(context.Background(), testEvent()))
	assert.Contains(t, buf.String(), `"type":"search.completed"`)
	assert.Contains(t, buf.String(), `"results_count":2`)
}
