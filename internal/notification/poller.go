package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nao1215/estatehub/pkg/event"
	"github.com/nao1215/estatehub/pkg/httpclient"
)

// pollerCursorName は読み取り位置を保存するときの名前。
const pollerCursorName = "eventstore-poller"

// BatchDispatcher はイベントのまとまりを処理する。
type BatchDispatcher interface {
	DispatchBatch(ctx context.Context, events []*event.Event) []Report
}

// CursorStore はトリガーソースの読み取り位置を永続化する。
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, seq int64) error
}

// Poller はEvent Storeの変更フィードをポーリングし、イベントをDispatcherに渡すバックグラウンドプロセス。
// 読み取り位置はバッチの処理が終わってから進めるため、再起動時には最後のバッチが再処理されることがある。
type Poller struct {
	// client はEvent Storeとの通信用HTTPクライアント。
	client *httpclient.Client
	// dispatcher はイベントの処理先。
	dispatcher BatchDispatcher
	// cursors は読み取り位置の保存先。nilの場合は保存しない。
	cursors CursorStore
	// interval はポーリング間隔。
	interval time.Duration
	// batchSize は1回に取得する最大イベント数。
	batchSize int
	// cursor は処理済みの最大seq。
	cursor int64
	// mu はcursorへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
	// done はバックグラウンドゴルーチンの終了を通知する。
	done chan struct{}
}

// NewPoller は新しいPollerを生成する。
// eventstoreURL はEvent StoreのベースURL（例: "http://localhost:8084"）。
func NewPoller(eventstoreURL string, dispatcher BatchDispatcher, cursors CursorStore, interval time.Duration, batchSize int) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Poller{
		client:     httpclient.New(eventstoreURL),
		dispatcher: dispatcher,
		cursors:    cursors,
		interval:   interval,
		batchSize:  batchSize,
	}
}

// Start は保存済みの読み取り位置を読み込み、バックグラウンドでポーリングを開始する。
func (p *Poller) Start(ctx context.Context) error {
	if p.cursors != nil {
		seq, err := p.cursors.LoadCursor(ctx, pollerCursorName)
		if err != nil {
			return err
		}
		p.setCursor(seq)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		log.Printf("[Poller] Event Storeのポーリングを開始します (after=%d)", p.Cursor())
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[Poller] ポーリングを停止しました")
				return
			case <-ticker.C:
				if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
					log.Printf("[Poller] ポーリングエラー: %v", err)
				}
			}
		}
	}()
	return nil
}

// Stop はバックグラウンドのポーリングを停止し、処理中のバッチが終わるまで待つ。
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// Cursor は処理済みの最大seqを返す。
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Poller) setCursor(seq int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = seq
}

// Poll は未処理のイベントがなくなるまでバッチ単位で取得して処理し、処理したイベント数を返す。
func (p *Poller) Poll(ctx context.Context) (int, error) {
	total := 0
	for {
		after := p.Cursor()
		path := fmt.Sprintf("/api/v1/events/since?after=%d&limit=%d", after, p.batchSize)

		var events []*event.Event
		if err := p.client.GetJSON(ctx, path, &events); err != nil {
			return total, fmt.Errorf("Event Storeからのイベント取得に失敗: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		p.dispatcher.DispatchBatch(ctx, events)

		latest := after
		for _, ev := range events {
			latest = max(latest, ev.Seq)
		}
		p.setCursor(latest)
		if p.cursors != nil {
			if err := p.cursors.SaveCursor(ctx, pollerCursorName, latest); err != nil {
				log.Printf("[Poller] 読み取り位置の保存に失敗: %v", err)
			}
		}
		total += len(events)
		log.Printf("[Poller] %d件のイベントを処理しました (after=%d)", len(events), latest)

		if len(events) < p.batchSize || latest == after {
			return total, nil
		}
	}
}
