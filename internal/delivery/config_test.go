package delivery

import (
	"testing"
	"time"

	"github.com/nao1215/estatehub/pkg/config"
)

func TestChannelConfigs(t *testing.T) {
	t.Parallel()

	t.Run("設定した順序でチャネルが並ぶ", func(t *testing.T) {
		t.Parallel()

		cfg := config.Delivery{
			Channels:     []string{"smtp", " Resend ", "mailgun", ""},
			From:         "EstateHub <news@example.com>",
			Timeout:      5 * time.Second,
			ResendURL:    "https://resend.example.com",
			ResendAPIKey: "re_key",
			SMTPHost:     "smtp.example.com",
			SMTPPort:     2525,
		}
		configs, err := ChannelConfigs(cfg)
		if err != nil {
			t.Fatalf("ChannelConfigs()でエラーが発生: %v", err)
		}
		if len(configs) != 3 {
			t.Fatalf("len = %d, want 3", len(configs))
		}
		want := []Kind{KindSMTP, KindJSONAPI, KindFormAPI}
		for i, cc := range configs {
			if cc.Kind != want[i] {
				t.Errorf("configs[%d].Kind = %s, want %s", i, cc.Kind, want[i])
			}
			if cc.From != cfg.From || cc.Timeout != cfg.Timeout {
				t.Errorf("configs[%d] の共通設定が引き継がれていない: %+v", i, cc)
			}
		}
		if configs[0].Port != 2525 || configs[1].APIKey != "re_key" {
			t.Errorf("チャネル固有の設定が不正: %+v", configs)
		}
	})

	t.Run("未知のチャネル名はエラー", func(t *testing.T) {
		t.Parallel()

		if _, err := ChannelConfigs(config.Delivery{Channels: []string{"sendgrid"}}); err == nil {
			t.Fatal("エラーが返されなかった")
		}
	})
}

func TestNewChainFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Delivery{
		Channels:     []string{"resend", "mailgun", "smtp"},
		From:         "news@example.com",
		ResendAPIKey: "re_key",
	}
	chain, err := NewChainFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewChainFromConfig()でエラーが発生: %v", err)
	}

	configured := map[string]bool{}
	for _, ch := range chain.channels {
		configured[ch.Name()] = ch.Configured()
	}
	want := map[string]bool{"resend": true, "mailgun": false, "smtp": false}
	for name, w := range want {
		if configured[name] != w {
			t.Errorf("%s.Configured() = %v, want %v", name, configured[name], w)
		}
	}
}
