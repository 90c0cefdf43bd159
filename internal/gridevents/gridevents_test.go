package gridevents

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Errors = true
	return cfg
}

func TestPublish_SendsJSONKeyedByCacheKey(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mockConfig())
	prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "pvgrid-ready" {
			return errors.New("wrong topic " + msg.Topic)
		}
		k, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(k) != "grid_key" {
			return errors.New("wrong key " + string(k))
		}
		v, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal(v, &ev); err != nil {
			return err
		}
		if ev.Type != TypeGridReady || ev.Shape != [2]int{4, 7} || ev.Year != 2019 || ev.TS.IsZero() {
			return errors.New("unexpected event " + string(v))
		}
		return nil
	})

	p := NewWithProducer(prod, "pvgrid-ready", 4, nil)
	p.Publish(Event{CacheKey: "grid_key", AzimuthRes: 30, SlopeRes: 30, Year: 2019, Shape: [2]int{4, 7}})
	require.NoError(t, p.Close())
}

func TestPublish_ProducerErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	prod := mocks.NewAsyncProducer(t, mockConfig())
	prod.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	p := NewWithProducer(prod, "t", 4, logger)
	p.Publish(Event{CacheKey: "k"})
	require.NoError(t, p.Close())

	// Close waits for the error loop, so the log line is already written
	assert.Contains(t, buf.String(), "gridevents producer error")
}

func TestPublish_AfterCloseIsDropped(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mockConfig())
	p := NewWithProducer(prod, "t", 1, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.NotPanics(t, func() { p.Publish(Event{CacheKey: "late"}) })
}

// blockingProducer never drains Input, so the queue fills up.
type blockingProducer struct {
	sarama.AsyncProducer
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func (b *blockingProducer) Input() chan<- *sarama.ProducerMessage { return b.input }
func (b *blockingProducer) Errors() <-chan *sarama.ProducerError  { return b.errors }

func TestPublish_FullQueueDropsWithoutBlocking(t *testing.T) {
	bp := &blockingProducer{input: make(chan *sarama.ProducerMessage), errors: make(chan *sarama.ProducerError)}
	p := NewWithProducer(bp, "t", 2, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 10 {
			p.Publish(Event{CacheKey: "k"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	// the pump holds at most one event, the rest past the queue were dropped
	assert.LessOrEqual(t, len(p.events), 2)
}
