package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc"

	"github.com/nao1215/estatehub/internal/delivery"
	"github.com/nao1215/estatehub/internal/store"
	"github.com/nao1215/estatehub/internal/store/backend"
	"github.com/nao1215/estatehub/internal/subscription"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/httpserver"
	"github.com/nao1215/estatehub/pkg/middleware"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

// トリガーソースの種別
const (
	// SourceEventStore はEvent Storeの変更フィードをポーリングする。
	SourceEventStore = "eventstore"
	// SourceKafka はKafkaのトピックを購読する。
	SourceKafka = "kafka"
)

// Config は通知サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8085"`
	// JWTSecret は受信箱APIのJWT検証鍵。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// TriggerSource は変更イベントの取得元（eventstore / kafka）。
	TriggerSource string `env:"TRIGGER_SOURCE" envDefault:"eventstore"`
	// EventStoreURL はEvent StoreのベースURL。
	EventStoreURL string `env:"EVENTSTORE_URL" envDefault:"http://localhost:8084"`
	// PollInterval は変更フィードのポーリング間隔。
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	// BatchSize は1回に処理する最大イベント数。
	BatchSize int `env:"BATCH_SIZE" envDefault:"100"`
	// Concurrency はバッチ内で同時に処理するイベント数。
	Concurrency int `env:"DISPATCH_CONCURRENCY" envDefault:"8"`
	// SiteURL は購読確認メールに載せるサイトのURL。
	SiteURL string `env:"SITE_URL" envDefault:"https://estatehub.example.com"`

	Store     config.Store
	Kafka     config.Kafka
	Delivery  config.Delivery
	Telemetry config.Telemetry
}

// Validate はトリガーソースの設定を検証する。
func (c Config) Validate() error {
	switch c.TriggerSource {
	case SourceEventStore:
		if c.EventStoreURL == "" {
			return errors.New("EVENTSTORE_URLが設定されていません")
		}
	case SourceKafka:
		if !c.Kafka.Enabled() {
			return errors.New("KAFKA_BROKERSが設定されていません")
		}
	default:
		return fmt.Errorf("未知のトリガーソースです: %q", c.TriggerSource)
	}
	return c.Store.Validate()
}

// Server は通知サービスのHTTPサーバーとトリガーソースをまとめたもの。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// inbox は受信箱APIが使う通知ストア。
	inbox InboxStore
	// metrics は/metricsで公開するメトリクス。
	metrics *telemetry.Metrics
	// poller はEvent Storeのポーリング。Kafkaを使う場合はnil。
	poller *Poller
	// consumer はKafkaのコンシューマー。ポーリングを使う場合はnil。
	consumer *Consumer
	// closers は停止時に閉じるリソース。
	closers []func() error
}

// NewServer は設定からストア、配信チェーン、ハンドラー、トリガーソースを組み立てる。
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := backend.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	metrics := telemetry.NewMetrics(nil)

	chain, err := delivery.NewChainFromConfig(cfg.Delivery, metrics)
	if err != nil {
		st.Close()
		return nil, err
	}
	log.Printf("[Notification] 配信チャネル: %v", chain.Channels())
	subscriptions := subscription.NewService(st, chain,
		subscription.WithMetrics(metrics),
		subscription.WithSiteURL(cfg.SiteURL),
	)

	handlers := NewHandlers(NewResolver(st, st), NewWriter(st, metrics), st, subscriptions)
	opts := []DispatcherOption{WithMetrics(metrics), WithConcurrency(cfg.Concurrency)}
	if rm, ok := st.(ReadModelStore); ok {
		opts = append(opts, WithProjector(NewDirectoryProjector(rm)))
		log.Println("[Notification] ディレクトリの読み取りモデルへの反映を有効にしました")
	}
	dispatcher := NewDispatcher(handlers, opts...)

	s := newServer(cfg.Port, cfg.JWTSecret, st, metrics)
	s.closers = append(s.closers, st.Close)
	switch cfg.TriggerSource {
	case SourceKafka:
		s.consumer = NewConsumer(cfg.Kafka, dispatcher, cfg.BatchSize)
	default:
		s.poller = NewPoller(cfg.EventStoreURL, dispatcher, st, cfg.PollInterval, cfg.BatchSize)
	}
	return s, nil
}

// newServer は受信箱APIのルーターを組み立てる。
func newServer(port, jwtSecret string, inbox InboxStore, metrics *telemetry.Metrics) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		port:    port,
		inbox:   inbox,
		metrics: metrics,
	}
	s.setupRoutes(jwtSecret)
	return s
}

// Run はトリガーソースとHTTPサーバーを起動し、ctxがキャンセルされたら両方を停止する。
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	var wg conc.WaitGroup
	if s.poller != nil {
		if err := s.poller.Start(ctx); err != nil {
			return fmt.Errorf("ポーリングの開始に失敗: %w", err)
		}
		defer s.poller.Stop()
	}
	if s.consumer != nil {
		wg.Go(func() {
			if err := s.consumer.Run(ctx); err != nil {
				log.Printf("[Kafka] コンシューマーが異常終了しました: %v", err)
			}
		})
	}
	defer wg.Wait()

	return httpserver.Serve(ctx, httpserver.New(s.port, s.router, "notification"))
}

func (s *Server) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Printf("[Notification] リソースのクローズに失敗: %v", err)
		}
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(jwtSecret string) {
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧取得（クエリパラメータ: limit）
			notifications.GET("", s.handleList(false))
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleList(true))
			// 未読通知数取得
			notifications.GET("/unread/count", s.handleCountUnread())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllAsRead())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// defaultListLimit は一覧取得の既定件数。
const defaultListLimit = 50

// handleList は認証済みユーザーの通知一覧を返すハンドラ。unreadOnlyなら未読のみ返す。
func (s *Server) handleList(unreadOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitは1以上の整数で指定してください"})
			return
		}

		notifications, err := s.inbox.ListNotifications(c.Request.Context(), userID, unreadOnly, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("[Inbox] 通知一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

// handleCountUnread は認証済みユーザーの未読通知数を返すハンドラ。
func (s *Server) handleCountUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		n, err := s.inbox.CountUnread(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知数の取得に失敗しました"})
			log.Printf("[Inbox] 未読通知数取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		// 通知の存在確認と所有者チェック
		n, err := s.inbox.GetNotification(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
			log.Printf("[Inbox] 通知取得エラー: %v", err)
			return
		}
		if n.RecipientID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			return
		}

		if err := s.inbox.MarkRead(c.Request.Context(), n.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("[Inbox] 通知既読処理エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		updated, err := s.inbox.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("[Inbox] 全通知既読処理エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました", "updated": updated})
	}
}
