package delivery

import (
	"context"
	"errors"
)

var (
	// ErrNoChannels は試行できるチャネルが1つもないことを表す。
	ErrNoChannels = errors.New("no delivery channels configured")
	// ErrNotConfigured はチャネルが設定されていないことを表す。
	ErrNotConfigured = errors.New("チャネルが設定されていません")
)

// Message は送信するメール。
type Message struct {
	// To は宛先のメールアドレス。
	To string
	// Subject は件名。
	Subject string
	// HTML はHTML形式の本文。
	HTML string
	// Text はテキスト形式の本文。
	Text string
}

// Receipt は送信に成功したときの受領情報。
type Receipt struct {
	// MessageID は配信プロバイダーが割り当てたメッセージID。
	MessageID string
}

// Channel はメールの配信チャネル。
type Channel interface {
	// Name はチャネル名を返す。
	Name() string
	// Configured は送信に必要な設定が揃っているかを返す。
	Configured() bool
	// Send はメールを1通送信する。
	Send(ctx context.Context, msg Message) (Receipt, error)
}
