// Package gridevents publishes grid_ready events to Kafka after a grid has
// been persisted.
package gridevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

const TypeGridReady = "grid_ready"

type Event struct {
	Type          string    `json:"type"`
	CacheKey      string    `json:"cache_key"`
	AzimuthRes    int       `json:"azimuth_res"`
	SlopeRes      int       `json:"slope_res"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	Year          int       `json:"year"`
	Shape         [2]int    `json:"shape"`
	AcquisitionID string    `json:"acquisition_id,omitempty"`
	TS            time.Time `json:"ts"`
}

// Publisher queues events and hands them to an async producer from a single
// goroutine. Publish never blocks.
type Publisher struct {
	topic  string
	prod   sarama.AsyncProducer
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	stopped chan struct{}
	errDone chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("gridevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, logger), nil
}

// NewWithProducer wraps an existing producer. The publisher owns it and
// closes it on Close.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		prod:    prod,
		logger:  logger,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				observability.IncGridEvent("marshal_error")
				p.logger.Warn("gridevents marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.CacheKey),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncGridEvent("sent")
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncGridEvent("error")
				p.logger.Warn("gridevents producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish enqueues ev. A full queue or a closed publisher drops it.
func (p *Publisher) Publish(ev Event) {
	if ev.Type == "" {
		ev.Type = TypeGridReady
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncGridEvent("dropped")
		return
	}
	select {
	case p.events <- ev:
	default:
		observability.IncGridEvent("dropped")
	}
}

// Close flushes queued events and closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("gridevents: close producer: %w", err)
	}
	return nil
}
