// Package kafka is the asynchronous transport: transfers are wrapped in a
// command envelope and published without waiting for their outcome.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"settleload/internal/action"
	"settleload/internal/transport"
)

// DefaultTopic is the settlement command topic.
const DefaultTopic = "SettlementsBcCommands"

const (
	msgTypeCommand     = 3
	msgNameTransfer    = "ProcessTransferCmd"
	boundedContextName = "SettlementsBc"
	aggregateName      = "Settlements"
)

// Envelope is the command message wrapping a transfer.
type Envelope struct {
	MsgType            int                    `json:"msgType"`
	MsgName            string                 `json:"msgName"`
	MsgID              string                 `json:"msgId"`
	MsgKey             string                 `json:"msgKey"`
	MsgTimestamp       int64                  `json:"msgTimestamp"`
	MsgTopic           string                 `json:"msgTopic"`
	BoundedContextName string                 `json:"boundedContextName"`
	AggregateID        string                 `json:"aggregateId"`
	AggregateName      string                 `json:"aggregateName"`
	Payload            action.TransferRequest `json:"payload"`
}

// NewEnvelope wraps tr for topic. The transfer id is the message id, key and aggregate id.
func NewEnvelope(tr action.TransferRequest, topic string, at time.Time) Envelope {
	return Envelope{
		MsgType:            msgTypeCommand,
		MsgName:            msgNameTransfer,
		MsgID:              tr.TransferID,
		MsgKey:             tr.TransferID,
		MsgTimestamp:       at.UnixMilli(),
		MsgTopic:           topic,
		BoundedContextName: boundedContextName,
		AggregateID:        tr.TransferID,
		AggregateName:      aggregateName,
		Payload:            tr,
	}
}

// MessageWriter is the subset of *kafkago.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Ack is the response recorded for a published transfer.
type Ack struct {
	Timestamp int64  `json:"timestamp"`
	Topic     string `json:"topic"`
}

// Producer publishes transfer commands. It is safe for concurrent use when
// the underlying writer is.
type Producer struct {
	w     MessageWriter
	topic string
	now   func() time.Time
}

// NewWriter returns a writer for a comma-separated broker list that waits
// for every in-sync replica and partitions by message key.
func NewWriter(brokers, topic string) *kafkago.Writer {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(splitBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Transport:    &kafkago.Transport{ClientID: "settleload-" + host},
	}
}

// New returns a producer publishing to topic through w.
func New(w MessageWriter, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{w: w, topic: topic, now: time.Now}
}

// Dial returns a producer connected to brokers.
func Dial(brokers, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return New(NewWriter(brokers, topic), topic)
}

// SubmitTransfer publishes tr and blocks until the brokers acknowledge it.
// Any acknowledged publish counts as accepted.
func (p *Producer) SubmitTransfer(ctx context.Context, tr action.TransferRequest) (transport.Result, error) {
	at := p.now()
	value, err := json.Marshal(NewEnvelope(tr, p.topic, at))
	if err != nil {
		return transport.Result{}, &transport.Error{Op: "publish " + p.topic, Err: err}
	}

	res := transport.Result{Sent: value}
	err = p.w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(tr.TransferID),
		Value: value,
		Time:  at,
	})
	if err != nil {
		return res, &transport.Error{Op: "publish " + p.topic, Err: err}
	}

	res.Received, err = json.Marshal(Ack{Timestamp: at.UnixMilli(), Topic: p.topic})
	if err != nil {
		return res, &transport.Error{Op: "publish " + p.topic, Err: fmt.Errorf("encoding ack: %w", err)}
	}
	res.Accepted = true
	return res, nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.w.Close()
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
