package delivery

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nao1215/estatehub/pkg/telemetry"
)

// Attempt はチャネル1つ分の試行結果。
type Attempt struct {
	// Channel はチャネル名。
	Channel string
	// Skipped は未設定のため試行しなかったかどうか。
	Skipped bool
	// Err は送信に失敗した理由。
	Err error
}

// Outcome はチェーン全体の送信結果。
type Outcome struct {
	// Delivered はいずれかのチャネルで送信に成功したかどうか。
	Delivered bool
	// Channel は送信に成功したチャネル名。
	Channel string
	// MessageID は送信に成功したときのメッセージID。
	MessageID string
	// LastError は最後に失敗したチャネルのエラー。試行できるチャネルがなければErrNoChannels。
	LastError error
	// Attempts はチャネルごとの試行結果。
	Attempts []Attempt
}

// Chain は順序付けたチャネルを先頭から試行する。
type Chain struct {
	channels []Channel
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// NewChain はchannelsの順序で試行するChainを生成する。
func NewChain(channels []Channel, metrics *telemetry.Metrics) *Chain {
	return &Chain{
		channels: channels,
		metrics:  metrics,
		tracer:   telemetry.Tracer("github.com/nao1215/estatehub/internal/delivery"),
	}
}

// Channels はチャネル名を試行順に返す。
func (c *Chain) Channels() []string {
	names := make([]string, 0, len(c.channels))
	for _, ch := range c.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Send はチャネルを順に試行し、最初に成功した時点で結果を返す。
// すべて失敗した場合は最後のエラーをOutcome.LastErrorに入れて返す。
func (c *Chain) Send(ctx context.Context, msg Message) Outcome {
	var out Outcome
	for _, ch := range c.channels {
		name := ch.Name()
		if !ch.Configured() {
			out.Attempts = append(out.Attempts, Attempt{Channel: name, Skipped: true})
			c.metrics.DeliveryAttempt(name, telemetry.OutcomeSkipped)
			continue
		}

		receipt, err := c.try(ctx, ch, msg)
		if err != nil {
			log.Printf("[Delivery] %s での送信に失敗: %v", name, err)
			out.Attempts = append(out.Attempts, Attempt{Channel: name, Err: err})
			out.LastError = fmt.Errorf("%s: %w", name, err)
			c.metrics.DeliveryAttempt(name, telemetry.OutcomeFailed)
			continue
		}

		out.Attempts = append(out.Attempts, Attempt{Channel: name})
		out.Delivered = true
		out.Channel = name
		out.MessageID = receipt.MessageID
		out.LastError = nil
		c.metrics.DeliveryAttempt(name, telemetry.OutcomeOK)
		return out
	}

	if out.LastError == nil {
		out.LastError = ErrNoChannels
	}
	return out
}

func (c *Chain) try(ctx context.Context, ch Channel, msg Message) (Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "delivery."+ch.Name(), trace.WithAttributes(
		attribute.String("delivery.channel", ch.Name()),
	))
	defer span.End()

	receipt, err := ch.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Receipt{}, err
	}
	span.SetAttributes(attribute.String("delivery.message_id", receipt.MessageID))
	return receipt, nil
}
