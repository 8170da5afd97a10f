package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "caminomanager/pkg/domain"
	audit "caminomanager/pkg/platform/audit"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() { f.closed = true }

func TestSinkPublish(t *testing.T) {
	producer := &fakeProducer{}
	sink := NewSinkWithProducer(producer, "camino.audit")

	event := audit.Event{ID: "e1", Action: audit.ActionSignIn, UserID: id.NewUserID(), Subject: "admin@camino.test"}
	require.NoError(t, sink.Publish(context.Background(), event))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "camino.audit", rec.Topic)
	assert.Equal(t, event.UserID.String(), string(rec.Key))
	assert.Equal(t, "sign_in", string(rec.Headers[0].Value))

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, event.UserID, decoded.UserID)
	assert.Equal(t, audit.ActionSignIn, decoded.Action)

	sink.Close()
	assert.True(t, producer.closed)
}

func TestSinkPublishError(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	sink := NewSinkWithProducer(producer, "camino.audit")

	err := sink.Publish(context.Background(), audit.Event{Action: audit.ActionSignOut})
	assert.ErrorContains(t, err, "broker down")
}
