package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

// SMTPChannel はSMTPで送信するチャネル。
// MIMEメッセージはgo-messageで組み立て、Message-Idヘッダーの値をメッセージIDとする。
type SMTPChannel struct {
	name     string
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	now      func() time.Time
}

// NewSMTPChannel は新しいSMTPChannelを生成する。hostが空の場合は未設定扱いになる。
func NewSMTPChannel(name, host string, port int, username, password, from string, timeout time.Duration) *SMTPChannel {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SMTPChannel{
		name:     name,
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Name はチャネル名を返す。
func (c *SMTPChannel) Name() string { return c.name }

// Configured はホストと送信元が設定されているかを返す。
func (c *SMTPChannel) Configured() bool {
	return c.host != "" && c.port > 0 && c.from != ""
}

// Send はSMTPサーバーに接続してメールを1通送信する。
// サーバーがSTARTTLSに対応していればTLSに切り替え、ユーザー名があればPLAIN認証を行う。
func (c *SMTPChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	if !c.Configured() {
		return Receipt{}, ErrNotConfigured
	}
	from, err := mail.ParseAddress(c.from)
	if err != nil {
		return Receipt{}, fmt.Errorf("送信元アドレスの解析に失敗: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return Receipt{}, fmt.Errorf("宛先アドレスの解析に失敗: %w", err)
	}

	body, messageID, err := c.build(from, to, msg)
	if err != nil {
		return Receipt{}, err
	}
	if err := c.deliver(ctx, from.Address, to.Address, body); err != nil {
		return Receipt{}, err
	}
	return Receipt{MessageID: messageID}, nil
}

// build はテキストとHTMLのmultipart/alternativeメッセージを組み立てる。
func (c *SMTPChannel) build(from, to *mail.Address, msg Message) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(c.now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("Message-Idの生成に失敗: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("Message-Idの取得に失敗: %w", err)
	}

	var buf bytes.Buffer
	tw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("MIMEメッセージの作成に失敗: %w", err)
	}
	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, "", fmt.Errorf("%sパートの作成に失敗: %w", p.contentType, err)
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, "", fmt.Errorf("%sパートの書き込みに失敗: %w", p.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("%sパートのクローズに失敗: %w", p.contentType, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, "", fmt.Errorf("MIMEメッセージのクローズに失敗: %w", err)
	}
	return buf.Bytes(), messageID, nil
}

// deliver はSMTPセッションを1回実行する。ctxの期限は接続のデッドラインに反映する。
func (c *SMTPChannel) deliver(ctx context.Context, from, to string, body []byte) error {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTPサーバー %s への接続に失敗: %w", addr, err)
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTPセッションの開始に失敗: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
			return fmt.Errorf("STARTTLSに失敗: %w", err)
		}
	}
	if c.username != "" {
		if err := client.Auth(smtp.PlainAuth("", c.username, c.password, c.host)); err != nil {
			return fmt.Errorf("SMTP認証に失敗: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROMに失敗: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TOに失敗: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATAに失敗: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("メッセージ本文の送信に失敗: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("メッセージ本文の送信に失敗: %w", err)
	}
	return client.Quit()
}
