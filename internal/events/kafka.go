package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures KafkaPublisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// KafkaPublisher writes serialized events to a topic. The writer is recreated when a
// write fails with a network or metadata error, at most once every two seconds.
type KafkaPublisher struct {
	mu        sync.Mutex
	w         *kafka.Writer
	cfg       KafkaConfig
	lastReset time.Time
}

// NewKafkaPublisher builds a publisher. No connection is made until the first write.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{cfg: cfg, w: newWriter(cfg)}
}

func newWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID:    cfg.ClientID,
			MetadataTTL: 10 * time.Second,
		},
	}
}

// Publish writes one message keyed by key. Messages with the same key land on the same
// partition, so events of one ticket stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	timeout := p.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	write := func() error {
		p.mu.Lock()
		w := p.w
		p.mu.Unlock()
		if w == nil {
			return context.Canceled
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return w.WriteMessages(cctx, kafka.Message{Key: key, Value: value})
	}

	if err := write(); err != nil {
		if shouldReset(err) {
			p.reset()
			return write()
		}
		return err
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return nil
	}
	err := p.w.Close()
	p.w = nil
	return err
}

var resetSuspects = []string{
	"dial tcp",
	"connection refused",
	"i/o timeout",
	"eof",
	"broken pipe",
	"not leader",
	"unknown broker",
	"failed to dial",
}

func shouldReset(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, sub := range resetSuspects {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (p *KafkaPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil || time.Since(p.lastReset) < 2*time.Second {
		return
	}
	_ = p.w.Close()
	p.w = newWriter(p.cfg)
	p.lastReset = time.Now()
}
