// Package ingest consumes upstream sync topics and upserts calendar events,
// CRM activities, and calls into the record store. Upstream delivery is
// at-least-once; idempotent upserts make replays harmless.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of one upstream sync record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	EventType string
	Source    string
	Payload   json.RawMessage
}

// ErrSkipMessage marks a message as permanently unprocessable. The processor
// commits it and moves on instead of retrying a record that can never succeed.
var ErrSkipMessage = errors.New("skip message")

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a
// Handler. Messages are committed only after the handler succeeds, except
// for malformed ones, which are committed to avoid poison-pill loops.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[ingest] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes messages until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		record, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, record); handleErr != nil {
			if errors.Is(handleErr, ErrSkipMessage) {
				p.logger.Printf("skipping message (event_type=%s, offset=%d): %v", record.EventType, msg.Offset, handleErr)
				recordSkipped(record.EventType)
				if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
					p.logger.Printf("commit error after skip: %v", commitErr)
				}
				continue
			}
			p.logger.Printf("handler error (event_type=%s): %v", record.EventType, handleErr)
			recordHandlerError(record.EventType)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(record.EventType)
		}
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	if len(msg.Value) == 0 || !json.Valid(msg.Value) {
		return Message{}, errors.New("payload is not valid JSON")
	}

	source, _ := headerValue(msg, "source")

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		EventType: eventType,
		Source:    source,
		Payload:   json.RawMessage(msg.Value),
	}, nil
}

func headerValue(msg kafka.Message, key string) (string, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return string(header.Value), true
		}
	}
	return "", false
}
