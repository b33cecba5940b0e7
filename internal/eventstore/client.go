package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/estatehub/pkg/event"
	"github.com/nao1215/estatehub/pkg/httpclient"
)

// Client はEvent StoreサービスのHTTPクライアント。
// 他のサービスはドキュメントを書き込んだあと、Publishで変更イベントを記録する。
type Client struct {
	http *httpclient.Client
}

// NewClient はbaseURLのEvent Storeに接続するClientを生成する。
func NewClient(baseURL string) *Client {
	return &Client{http: httpclient.New(baseURL, httpclient.WithTimeout(10*time.Second))}
}

// Publish は変更イベントを追記し、採番されたseqをevに設定する。
func (c *Client) Publish(ctx context.Context, ev *event.Event) error {
	var resp appendResponse
	if err := c.http.PostJSON(ctx, "/api/v1/events", ev, &resp); err != nil {
		return fmt.Errorf("イベントの送信に失敗: %w", err)
	}
	ev.Seq = resp.Seq
	return nil
}

// Since はseqがafterより大きいイベントを最大limit件取得する。
func (c *Client) Since(ctx context.Context, after int64, limit int) ([]*event.Event, error) {
	var events []*event.Event
	path := fmt.Sprintf("/api/v1/events/since?after=%d&limit=%d", after, limit)
	if err := c.http.GetJSON(ctx, path, &events); err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	return events, nil
}
