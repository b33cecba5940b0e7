package subscription

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/nao1215/estatehub/internal/delivery"
	"github.com/nao1215/estatehub/internal/eventstore"
	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store/backend"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/httpserver"
	"github.com/nao1215/estatehub/pkg/middleware"
	"github.com/nao1215/estatehub/pkg/ratelimit"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

// Config は購読サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8086"`
	// FrontendOrigins はCORSで許可するオリジン。
	FrontendOrigins []string `env:"FRONTEND_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// SiteURL は確認メールに載せるサイトのURL。
	SiteURL string `env:"SITE_URL" envDefault:"https://estatehub.example.com"`
	// EventStoreURL は購読作成イベントを書き込むEvent StoreのURL。空なら書き込まない。
	EventStoreURL string `env:"EVENTSTORE_URL" envDefault:"http://localhost:8084"`
	// JWTSecret は購読レコード参照APIのJWT検証鍵。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// RedisAddr はレート制限に使うRedisのアドレス。空ならレート制限しない。
	RedisAddr string `env:"REDIS_ADDR"`
	// RateLimit はウィンドウあたりのクライアントごとの申込上限。
	RateLimit int64 `env:"SUBSCRIBE_RATE_LIMIT" envDefault:"5"`
	// RateWindow はレート制限のウィンドウ。
	RateWindow time.Duration `env:"SUBSCRIBE_RATE_WINDOW" envDefault:"1m"`

	Store     config.Store
	Delivery  config.Delivery
	Telemetry config.Telemetry
}

// Server は購読サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// service は購読の受付処理。
	service *Service
	// metrics は/metricsで公開するメトリクス。
	metrics *telemetry.Metrics
	// closers は停止時に閉じるリソース。
	closers []func() error
}

// NewServer は設定から購読サーバーを組み立てる。
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
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

	opts := []Option{WithMetrics(metrics), WithSiteURL(cfg.SiteURL)}
	if cfg.EventStoreURL != "" {
		opts = append(opts, WithPublisher(eventstore.NewClient(cfg.EventStoreURL)))
	}
	service := NewService(st, chain, opts...)

	var limiter *ratelimit.Limiter
	closers := []func() error{st.Close}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.New(rdb)
		closers = append(closers, rdb.Close)
		log.Printf("[Subscription] レート制限を有効にしました (limit=%d, window=%s)", cfg.RateLimit, cfg.RateWindow)
	}

	s := newServer(cfg, service, metrics, limiter)
	s.closers = closers
	return s, nil
}

// newServer はServiceを指定してサーバーを組み立てる。limiterがnilならレート制限しない。
func newServer(cfg Config, service *Service, metrics *telemetry.Metrics, limiter *ratelimit.Limiter) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.FrontendOrigins))

	s := &Server{
		router:  router,
		port:    cfg.Port,
		service: service,
		metrics: metrics,
	}
	s.setupRoutes(cfg, limiter)
	return s
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされたら停止する。
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		for _, c := range s.closers {
			if err := c(); err != nil {
				log.Printf("[Subscription] リソースのクローズに失敗: %v", err)
			}
		}
	}()
	return httpserver.Serve(ctx, httpserver.New(s.port, s.router, "subscription"))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(cfg Config, limiter *ratelimit.Limiter) {
	api := s.router.Group("/api/v1")
	{
		subscriptions := api.Group("/subscriptions")
		{
			subscribe := []gin.HandlerFunc{s.handleSubscribe()}
			if limiter != nil {
				subscribe = append([]gin.HandlerFunc{limiter.Middleware(cfg.RateLimit, cfg.RateWindow, clientKey, rejectTooMany)}, subscribe...)
			}
			// 購読の申込
			subscriptions.POST("", subscribe...)
			// 購読レコードの参照（管理者のみ）
			subscriptions.GET("/:id",
				middleware.JWTAuth(cfg.JWTSecret),
				middleware.RequireRole(string(model.RoleAdmin)),
				s.handleGet(),
			)
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "subscription"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// subscribeResponse は購読申込の成功レスポンス。
type subscribeResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscriptionId"`
}

// errorResponse は購読サービスのエラーレスポンス。
type errorResponse struct {
	Success        bool   `json:"success"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// handleSubscribe は購読の申込を処理するハンドラを返す。
func (s *Server) handleSubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in SubscribeInput
		if err := c.ShouldBindJSON(&in); err != nil {
			writeError(c, invalidArgument("Please enter a valid email address.", err), "")
			return
		}

		result, err := s.service.Subscribe(c.Request.Context(), in)
		if err != nil {
			writeError(c, err, result.SubscriptionID)
			return
		}
		c.JSON(http.StatusOK, subscribeResponse{
			Success:        true,
			Message:        "Thanks for subscribing! Please check your inbox.",
			SubscriptionID: result.SubscriptionID,
		})
	}
}

// subscriptionResponse は購読レコードのJSONレスポンス。
type subscriptionResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Status          string `json:"status"`
	Source          string `json:"source,omitempty"`
	DeliveryChannel string `json:"deliveryChannel,omitempty"`
	EmailMessageID  string `json:"emailMessageId,omitempty"`
	EmailError      string `json:"emailError,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func toSubscriptionResponse(sub *model.EmailSubscription) subscriptionResponse {
	return subscriptionResponse{
		ID:              sub.ID,
		Email:           sub.Email,
		Status:          string(sub.Status),
		Source:          sub.Source,
		DeliveryChannel: sub.DeliveryChannel,
		EmailMessageID:  sub.EmailMessageID,
		EmailError:      sub.EmailError,
		CreatedAt:       sub.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       sub.UpdatedAt.Format(time.RFC3339),
	}
}

// handleGet は購読レコードの参照を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := s.service.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, toSubscriptionResponse(sub))
	}
}

// writeError はエラーをコード付きのレスポンスに変換する。
func writeError(c *gin.Context, err error, subscriptionID string) {
	var se *Error
	if !errors.As(err, &se) {
		se = internal("Could not process your subscription. Please try again later.", err)
	}
	if se.Code == CodeInternal {
		log.Printf("[Subscription] %v", se)
	}
	c.JSON(se.HTTPStatus(), errorResponse{
		Success:        false,
		Code:           se.Code,
		Message:        se.Message,
		SubscriptionID: subscriptionID,
	})
}

// clientKey はレート制限のキーとしてクライアントのIPを返す。
func clientKey(c *gin.Context) string {
	return "subscribe:" + strings.TrimSpace(c.ClientIP())
}

func rejectTooMany(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, errorResponse{
		Success: false,
		Code:    "resource-exhausted",
		Message: "Too many requests. Please try again later.",
	})
}
