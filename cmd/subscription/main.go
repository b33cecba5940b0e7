// メール購読サービスのエントリポイント。
// ニュースレターの購読を受け付け、配信チャネルを順に試して確認メールを送る。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/estatehub/internal/subscription"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

func main() {
	var cfg subscription.Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, "subscription")
	if err != nil {
		log.Fatalf("トレースの初期化に失敗: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("トレースの終了処理に失敗: %v", err)
		}
	}()

	server, err := subscription.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("購読サーバーの初期化に失敗: %v", err)
	}

	log.Printf("購読サービスを起動します: :%s", cfg.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("購読サービスの起動に失敗: %v", err)
	}
}
