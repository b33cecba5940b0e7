package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

// ErrEmptyRecipient は受信者IDが空の下書きを書き込もうとしたことを表す。
var ErrEmptyRecipient = errors.New("受信者IDが空です")

// Draft は書き込む前の通知。
type Draft struct {
	RecipientID string
	Title       string
	Message     string
	Category    model.Category
	Link        string
}

// WriteResult は通知1件の書き込み結果。
type WriteResult struct {
	// RecipientID は受信者のユーザーID。
	RecipientID string
	// NotificationID は書き込んだ通知のID。失敗した場合は空。
	NotificationID string
	// Err は書き込みに失敗した理由。
	Err error
}

// Writer は通知レコードを作成する。
// 書き込みの失敗は結果に記録してログに出力し、呼び出し元には伝播しない。
type Writer struct {
	store   NotificationStore
	metrics *telemetry.Metrics
	now     func() time.Time
	newID   func() string
}

// NewWriter は新しいWriterを生成する。
func NewWriter(store NotificationStore, metrics *telemetry.Metrics) *Writer {
	return &Writer{
		store:   store,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Write は通知を1件作成する。Readはfalse、CreatedAtはサーバー時刻になる。
func (w *Writer) Write(ctx context.Context, d Draft) WriteResult {
	result := WriteResult{RecipientID: d.RecipientID}
	if d.RecipientID == "" {
		result.Err = ErrEmptyRecipient
		w.metrics.NotificationWritten(telemetry.OutcomeSkipped)
		return result
	}

	n := &model.Notification{
		ID:          w.newID(),
		RecipientID: d.RecipientID,
		Title:       d.Title,
		Message:     d.Message,
		Category:    d.Category,
		Link:        d.Link,
		CreatedAt:   w.now(),
	}
	if err := w.store.CreateNotification(ctx, n); err != nil {
		result.Err = err
		log.Printf("[Writer] 通知の書き込みに失敗 (recipient=%s): %v", d.RecipientID, err)
		w.metrics.NotificationWritten(telemetry.OutcomeFailed)
		return result
	}
	result.NotificationID = n.ID
	w.metrics.NotificationWritten(telemetry.OutcomeOK)
	return result
}

// FanOut は下書きを並行して書き込み、すべての書き込みが終わるまで待つ。
// 1件の失敗やパニックが他の書き込みを止めることはない。結果は下書きと同じ順序で返る。
func (w *Writer) FanOut(ctx context.Context, drafts []Draft) []WriteResult {
	results := make([]WriteResult, len(drafts))
	var wg conc.WaitGroup
	for i, d := range drafts {
		wg.Go(func() {
			var pc panics.Catcher
			pc.Try(func() { results[i] = w.Write(ctx, d) })
			if r := pc.Recovered(); r != nil {
				log.Printf("[Writer] 通知の書き込み中にパニック (recipient=%s): %v", d.RecipientID, r.Value)
				w.metrics.NotificationWritten(telemetry.OutcomeFailed)
				results[i] = WriteResult{RecipientID: d.RecipientID, Err: fmt.Errorf("書き込み中にパニック: %w", r.AsError())}
			}
		})
	}
	wg.Wait()
	return results
}
