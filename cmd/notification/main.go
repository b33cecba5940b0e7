// 通知サービスのエントリポイント。
// ドキュメントの変更イベントを購読し、受信者を解決してアプリ内通知を書き込む。
// 受信箱APIもこのサービスが提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/estatehub/internal/notification"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

func main() {
	var cfg notification.Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, "notification")
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

	server, err := notification.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s (trigger=%s)", cfg.Port, cfg.TriggerSource)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}
