package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/event"
)

// MessageWriter はKafkaにメッセージを書き込む。kafka.Writerが満たす。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror は追記したイベントをKafkaのトピックにも書き込む。
// キーはドキュメントパスなので、同じドキュメントのイベントは同じパーティションに入る。
type Mirror struct {
	writer MessageWriter
}

// NewMirror はKafkaの設定からMirrorを生成する。
func NewMirror(cfg config.Kafka) *Mirror {
	return NewMirrorWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

// NewMirrorWithWriter は任意のMessageWriterを使うMirrorを生成する。
func NewMirrorWithWriter(w MessageWriter) *Mirror {
	return &Mirror{writer: w}
}

// Publish はイベントをトピックに書き込む。
func (m *Mirror) Publish(ctx context.Context, ev *event.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.DocumentPath),
		Value: value,
		Time:  ev.CreatedAt,
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("Kafkaへの書き込みに失敗: %w", err)
	}
	return nil
}

// Close はWriterを閉じる。
func (m *Mirror) Close() error {
	return m.writer.Close()
}
