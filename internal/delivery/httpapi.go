package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/estatehub/pkg/httpclient"
)

// errMissingID は送信APIのレスポンスにメッセージIDがないことを表す。
var errMissingID = errors.New("メール送信APIのレスポンスにidがありません")

// JSONAPIChannel はJSONボディとBearerトークンで送信するHTTP APIのチャネル（Resend互換）。
type JSONAPIChannel struct {
	name   string
	from   string
	apiKey string
	client *httpclient.Client
}

// NewJSONAPIChannel は新しいJSONAPIChannelを生成する。apiKeyが空の場合は未設定扱いになる。
func NewJSONAPIChannel(name, baseURL, apiKey, from string, timeout time.Duration) *JSONAPIChannel {
	return &JSONAPIChannel{
		name:   name,
		from:   from,
		apiKey: apiKey,
		client: httpclient.New(baseURL, httpclient.WithBearerToken(apiKey), httpclient.WithTimeout(timeout)),
	}
}

// Name はチャネル名を返す。
func (c *JSONAPIChannel) Name() string { return c.name }

// Configured はAPIキーと送信元が設定されているかを返す。
func (c *JSONAPIChannel) Configured() bool {
	return c.apiKey != "" && c.from != ""
}

// jsonAPIRequest は送信APIのリクエストボディ。
type jsonAPIRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// apiResponse は送信APIのレスポンスボディ。
type apiResponse struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Send は /emails にメールをPOSTする。
func (c *JSONAPIChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	if !c.Configured() {
		return Receipt{}, ErrNotConfigured
	}
	req := jsonAPIRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	var resp apiResponse
	if err := c.client.PostJSON(ctx, "/emails", req, &resp); err != nil {
		return Receipt{}, fmt.Errorf("メール送信APIの呼び出しに失敗: %w", err)
	}
	if resp.ID == "" {
		return Receipt{}, errMissingID
	}
	return Receipt{MessageID: resp.ID}, nil
}

// FormAPIChannel はフォーム形式とBasic認証で送信するHTTP APIのチャネル（Mailgun互換）。
type FormAPIChannel struct {
	name   string
	from   string
	domain string
	apiKey string
	client *httpclient.Client
}

// NewFormAPIChannel は新しいFormAPIChannelを生成する。domainかapiKeyが空の場合は未設定扱いになる。
func NewFormAPIChannel(name, baseURL, domain, apiKey, from string, timeout time.Duration) *FormAPIChannel {
	return &FormAPIChannel{
		name:   name,
		from:   from,
		domain: domain,
		apiKey: apiKey,
		client: httpclient.New(baseURL, httpclient.WithBasicAuth("api", apiKey), httpclient.WithTimeout(timeout)),
	}
}

// Name はチャネル名を返す。
func (c *FormAPIChannel) Name() string { return c.name }

// Configured は送信ドメイン、APIキー、送信元が設定されているかを返す。
func (c *FormAPIChannel) Configured() bool {
	return c.domain != "" && c.apiKey != "" && c.from != ""
}

// Send は /v3/{domain}/messages にメールをPOSTする。
func (c *FormAPIChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	if !c.Configured() {
		return Receipt{}, ErrNotConfigured
	}
	form := url.Values{}
	form.Set("from", c.from)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	if msg.HTML != "" {
		form.Set("html", msg.HTML)
	}
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}

	var resp apiResponse
	path := "/v3/" + url.PathEscape(c.domain) + "/messages"
	if err := c.client.PostForm(ctx, path, form, &resp); err != nil {
		return Receipt{}, fmt.Errorf("メール送信APIの呼び出しに失敗: %w", err)
	}
	id := strings.Trim(resp.ID, "<>")
	if id == "" {
		return Receipt{}, errMissingID
	}
	return Receipt{MessageID: id}, nil
}
