// Package kafka 提供了把转换事件发布到 Kafka 的功能。
package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"pcconv-go/internal/config"
	"pcconv-go/pkg/events"
	"pcconv-go/pkg/log"
)

// Producer 把 ConversionEvent 序列化为 JSON 写入指定主题。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。brokers 以逗号分隔。
func NewProducer(cfg config.KafkaConfig) *Producer {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

// Publish 发送一条或多条事件，同一批次的事件使用相同的 key 以保证顺序。
func (p *Producer) Publish(ctx context.Context, evts ...events.ConversionEvent) error {
	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.BatchID), Value: value})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close 刷新并关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}
