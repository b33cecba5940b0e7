// イベントストアサービスのエントリポイント。
// ドキュメントの変更イベントを追記専用で永続化し、seq順の変更フィードとして配信する。
// Kafkaが設定されていれば追記したイベントをトピックにも流す。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/estatehub/internal/eventstore"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

func main() {
	var cfg eventstore.Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, "eventstore")
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

	server, err := eventstore.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("イベントストアサーバーの初期化に失敗: %v", err)
	}

	log.Printf("イベントストアサービスを起動します: :%s", cfg.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("イベントストアサービスの起動に失敗: %v", err)
	}
}
