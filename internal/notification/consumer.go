package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/event"
)

// MessageReader はKafkaのメッセージを読み出す。kafka.Readerが満たす。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer はKafkaの変更イベントトピックを購読し、イベントをバッチ単位でDispatcherに渡す。
// オフセットはバッチの処理が終わってからコミットするため、配信は少なくとも1回になる。
type Consumer struct {
	reader     MessageReader
	dispatcher BatchDispatcher
	batchSize  int
	linger     time.Duration
}

// NewConsumer はKafkaのコンシューマーグループに参加するConsumerを生成する。
func NewConsumer(cfg config.Kafka, dispatcher BatchDispatcher, batchSize int) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return NewConsumerWithReader(reader, dispatcher, batchSize, 200*time.Millisecond)
}

// NewConsumerWithReader は任意のMessageReaderを使うConsumerを生成する。
// lingerは1件目を受け取ってからバッチを締め切るまでの待ち時間。
func NewConsumerWithReader(reader MessageReader, dispatcher BatchDispatcher, batchSize int, linger time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Consumer{
		reader:     reader,
		dispatcher: dispatcher,
		batchSize:  batchSize,
		linger:     linger,
	}
}

// Run はctxがキャンセルされるまでメッセージを処理する。終了時にReaderを閉じる。
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		_ = c.reader.Close()
	}()

	log.Println("[Kafka] コンシューマーを開始しました")
	for {
		msgs, err := c.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("[Kafka] コンシューマーを停止します")
				return nil
			}
			log.Printf("[Kafka] メッセージの取得に失敗: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.dispatcher.DispatchBatch(ctx, decodeMessages(msgs))

		// 処理済みのバッチは停止中でもコミットする
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := c.reader.CommitMessages(commitCtx, msgs...); err != nil {
			log.Printf("[Kafka] オフセットのコミットに失敗: %v", err)
		}
		cancel()
	}
}

// fetchBatch は1件目を待ってから、linger経過かbatchSize件に達するまでメッセージを集める。
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafka.Message{first}

	lingerCtx, cancel := context.WithTimeout(ctx, c.linger)
	defer cancel()
	for len(msgs) < c.batchSize {
		m, err := c.reader.FetchMessage(lingerCtx)
		if err != nil {
			// 締め切りやReaderのエラーでは集めた分だけを処理する
			break
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// decodeMessages はメッセージを変更イベントに変換する。
// 不正なメッセージはログに出力して読み飛ばす（コミットはされる）。
func decodeMessages(msgs []kafka.Message) []*event.Event {
	events := make([]*event.Event, 0, len(msgs))
	for _, m := range msgs {
		var ev event.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("[Kafka] メッセージのデシリアライズに失敗 (partition=%d, offset=%d): %v", m.Partition, m.Offset, err)
			continue
		}
		if ev.Collection == "" {
			collection, id, err := event.ParsePath(ev.DocumentPath)
			if err == nil {
				ev.Collection, ev.DocumentID = collection, id
			}
		}
		if err := ev.Validate(); err != nil {
			log.Printf("[Kafka] 不正なイベントを読み飛ばします (partition=%d, offset=%d): %v", m.Partition, m.Offset, err)
			continue
		}
		if ev.ID == "" {
			ev.ID = fmt.Sprintf("kafka-%d-%d", m.Partition, m.Offset)
		}
		events = append(events, &ev)
	}
	return events
}
