// Package events streams recorded trades to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arena-trade-agent-go/internal/config"
	"arena-trade-agent-go/internal/metrics"
	"arena-trade-agent-go/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TradeEvent is the payload published for every recorded trade.
type TradeEvent struct {
	AgentID    string    `json:"agent_id"`
	TradeID    uint      `json:"trade_id"`
	Skill      string    `json:"skill"`
	Action     string    `json:"action"`
	TokenIn    string    `json:"token_in"`
	TokenOut   string    `json:"token_out"`
	AmountIn   float64   `json:"amount_in"`
	AmountOut  float64   `json:"amount_out"`
	PnL        float64   `json:"pnl"`
	TxRef      string    `json:"tx_ref"`
	VaultValue float64   `json:"vault_value"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewTradeEvent builds the event for a persisted trade and the vault value
// after it was applied.
func NewTradeEvent(t *models.Trade, vaultValue float64) TradeEvent {
	return TradeEvent{
		AgentID:    t.AgentID,
		TradeID:    t.ID,
		Skill:      t.Skill,
		Action:     t.Action,
		TokenIn:    t.TokenIn,
		TokenOut:   t.TokenOut,
		AmountIn:   t.AmountIn,
		AmountOut:  t.AmountOut,
		PnL:        t.PnL,
		TxRef:      t.TxRef,
		VaultValue: vaultValue,
		Timestamp:  t.Timestamp,
	}
}

// Message encodes the event keyed by agent, so one agent's trades stay in
// order on a single partition.
func (e TradeEvent) Message() (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal trade event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.AgentID),
		Value: value,
		Time:  e.Timestamp,
	}, nil
}

// Publisher publishes trade events.
type Publisher interface {
	PublishTrade(ctx context.Context, event TradeEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes trade events to a Kafka topic.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// NewKafkaPublisher creates a publisher for cfg. rec may be nil.
func NewKafkaPublisher(cfg config.Kafka, logger *zap.Logger, rec *metrics.Recorder) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Gzip,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		BatchTimeout:           100 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, logger, rec), nil
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger, rec *metrics.Recorder) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		logger:  logger.Named("events"),
		metrics: rec,
	}
}

// PublishTrade writes one event.
func (p *KafkaPublisher) PublishTrade(ctx context.Context, event TradeEvent) error {
	msg, err := event.Message()
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.RecordEvent(err)
	if err != nil {
		return fmt.Errorf("publish trade event: %w", err)
	}
	p.logger.Debug("Trade event published",
		zap.String("agent_id", event.AgentID),
		zap.String("tx_ref", event.TxRef))
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
