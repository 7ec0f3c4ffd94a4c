package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settleload/internal/action"
	"settleload/internal/transport"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestProducer_SubmitTransfer(t *testing.T) {
	w := &fakeWriter{}
	p := New(w, "")
	at := time.UnixMilli(1_700_000_000_123)
	p.now = func() time.Time { return at }

	tr := action.TransferRequest{TransferID: "t-1", PayerFspID: "A", PayeeFspID: "B", CurrencyCode: "USD", Amount: "10"}
	res, err := p.SubmitTransfer(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.JSONEq(t, `{"timestamp":1700000000123,"topic":"SettlementsBcCommands"}`, string(res.Received))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "t-1", string(msg.Key))
	assert.Equal(t, res.Sent, msg.Value)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, 3, env.MsgType)
	assert.Equal(t, "ProcessTransferCmd", env.MsgName)
	assert.Equal(t, "t-1", env.MsgID)
	assert.Equal(t, "t-1", env.MsgKey)
	assert.Equal(t, "t-1", env.AggregateID)
	assert.Equal(t, "SettlementsBc", env.BoundedContextName)
	assert.Equal(t, "Settlements", env.AggregateName)
	assert.Equal(t, "SettlementsBcCommands", env.MsgTopic)
	assert.Equal(t, int64(1_700_000_000_123), env.MsgTimestamp)
	assert.Equal(t, tr, env.Payload)
}

func TestProducer_PublishFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := New(w, "custom")

	res, err := p.SubmitTransfer(context.Background(), action.TransferRequest{TransferID: "t-2"})
	require.Error(t, err)
	assert.False(t, res.Accepted)
	assert.NotEmpty(t, res.Sent)

	var te *transport.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "publish custom", te.Op)
	assert.Equal(t, 0, te.Code)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, New(w, "").Close())
	assert.True(t, w.closed)
}

func TestNewWriter(t *testing.T) {
	w := NewWriter("b1:9092, b2:9092,", "topic-x")
	assert.Equal(t, "topic-x", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
	assert.NotNil(t, w.Addr)
	assert.IsType(t, &kafkago.Hash{}, w.Balancer)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitBrokers(" a:1 ,b:2,,"))
	assert.Nil(t, splitBrokers(""))
}
