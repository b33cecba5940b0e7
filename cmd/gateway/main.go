// API Gatewayのエントリポイント。
// 受信箱API・購読API・変更フィードへの唯一の入口として、認証とルーティングを担当する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/estatehub/internal/gateway"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

func main() {
	var cfg gateway.Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, "gateway")
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

	if cfg.DevTokens {
		log.Println("[Gateway] 開発用トークンの発行が有効です")
	}
	log.Printf("API Gatewayを起動します: :%s", cfg.Port)
	if err := gateway.NewServer(cfg).Run(ctx); err != nil {
		log.Fatalf("API Gatewayの起動に失敗: %v", err)
	}
}
