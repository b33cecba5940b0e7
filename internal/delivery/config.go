package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

// defaultTimeout はチャネル1回の送信タイムアウトのデフォルト値。
const defaultTimeout = 15 * time.Second

// Kind はチャネルの実装の種類。
type Kind string

const (
	// KindJSONAPI はJSONボディとBearerトークンのHTTP API。
	KindJSONAPI Kind = "json-api"
	// KindFormAPI はフォーム形式とBasic認証のHTTP API。
	KindFormAPI Kind = "form-api"
	// KindSMTP はSMTP。
	KindSMTP Kind = "smtp"
)

// ChannelConfig はチャネル1つの設定。チェーンはこの記述子の並びから組み立てる。
type ChannelConfig struct {
	Name     string
	Kind     Kind
	From     string
	Timeout  time.Duration
	BaseURL  string
	APIKey   string
	Domain   string
	Host     string
	Port     int
	Username string
	Password string
}

// ChannelConfigs は配信設定から試行順のチャネル設定を組み立てる。
// 既知のチャネル名は resend / mailgun / smtp。
func ChannelConfigs(cfg config.Delivery) ([]ChannelConfig, error) {
	configs := make([]ChannelConfig, 0, len(cfg.Channels))
	for _, raw := range cfg.Channels {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		cc := ChannelConfig{Name: name, From: cfg.From, Timeout: cfg.Timeout}
		switch name {
		case "resend":
			cc.Kind = KindJSONAPI
			cc.BaseURL = cfg.ResendURL
			cc.APIKey = cfg.ResendAPIKey
		case "mailgun":
			cc.Kind = KindFormAPI
			cc.BaseURL = cfg.MailgunURL
			cc.Domain = cfg.MailgunDomain
			cc.APIKey = cfg.MailgunAPIKey
		case "smtp":
			cc.Kind = KindSMTP
			cc.Host = cfg.SMTPHost
			cc.Port = cfg.SMTPPort
			cc.Username = cfg.SMTPUsername
			cc.Password = cfg.SMTPPassword
		default:
			return nil, fmt.Errorf("未知の配信チャネルです: %q", raw)
		}
		configs = append(configs, cc)
	}
	return configs, nil
}

// NewChannel は設定からチャネルを生成する。
func NewChannel(cc ChannelConfig) (Channel, error) {
	timeout := cc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	switch cc.Kind {
	case KindJSONAPI:
		return NewJSONAPIChannel(cc.Name, cc.BaseURL, cc.APIKey, cc.From, timeout), nil
	case KindFormAPI:
		return NewFormAPIChannel(cc.Name, cc.BaseURL, cc.Domain, cc.APIKey, cc.From, timeout), nil
	case KindSMTP:
		return NewSMTPChannel(cc.Name, cc.Host, cc.Port, cc.Username, cc.Password, cc.From, timeout), nil
	default:
		return nil, fmt.Errorf("未知のチャネル種別です: %q", cc.Kind)
	}
}

// NewChainFromConfig は配信設定からChainを組み立てる。
func NewChainFromConfig(cfg config.Delivery, metrics *telemetry.Metrics) (*Chain, error) {
	configs, err := ChannelConfigs(cfg)
	if err != nil {
		return nil, err
	}
	channels := make([]Channel, 0, len(configs))
	for _, cc := range configs {
		ch, err := NewChannel(cc)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return NewChain(channels, metrics), nil
}
