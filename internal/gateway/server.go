package gateway

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/httpserver"
	"github.com/nao1215/estatehub/pkg/middleware"
)

// Config はGatewayの設定。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// JWTSecret はトークンの署名・検証鍵。各サービスと同じ値にする。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// FrontendOrigins はCORSで許可するオリジン。
	FrontendOrigins []string `env:"FRONTEND_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// DevTokens は開発用トークンの発行を有効にするかどうか。本番では無効にする。
	DevTokens bool `env:"DEV_TOKENS" envDefault:"false"`
	// NotificationURL は通知サービスのURL。
	NotificationURL string `env:"NOTIFICATION_URL" envDefault:"http://localhost:8085"`
	// SubscriptionURL は購読サービスのURL。
	SubscriptionURL string `env:"SUBSCRIPTION_URL" envDefault:"http://localhost:8086"`
	// EventStoreURL はEvent StoreのURL。
	EventStoreURL string `env:"EVENTSTORE_URL" envDefault:"http://localhost:8084"`
	// ProxyTimeout は内部サービスへのリクエストのタイムアウト。
	ProxyTimeout time.Duration `env:"PROXY_TIMEOUT" envDefault:"30s"`

	Telemetry config.Telemetry
}

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// client は内部サービスへの転送に使うHTTPクライアント。
	client *http.Client
}

// NewServer は設定からGatewayを組み立てる。
func NewServer(cfg Config) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.FrontendOrigins))

	s := &Server{
		router:    router,
		port:      cfg.Port,
		jwtSecret: cfg.JWTSecret,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.ProxyTimeout,
		},
	}
	s.setupRoutes(cfg)
	return s
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされたら停止する。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, httpserver.New(s.port, s.router, "gateway"))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(cfg Config) {
	if cfg.DevTokens {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	api := s.router.Group("/api/v1")

	// 購読の申込（認証不要。レート制限は購読サービス側で行う）
	api.POST("/subscriptions", s.proxyTo(cfg.SubscriptionURL))

	authed := api.Group("")
	authed.Use(middleware.JWTAuth(s.jwtSecret))
	{
		authed.GET("/me", s.handleGetCurrentUser())

		// 受信箱
		notifications := authed.Group("/notifications")
		{
			notifications.GET("", s.proxyTo(cfg.NotificationURL))
			notifications.GET("/unread", s.proxyTo(cfg.NotificationURL))
			notifications.GET("/unread/count", s.proxyTo(cfg.NotificationURL))
			notifications.PUT("/:id/read", s.proxyTo(cfg.NotificationURL))
			notifications.PUT("/read-all", s.proxyTo(cfg.NotificationURL))
		}

		admin := authed.Group("")
		admin.Use(middleware.RequireRole(string(model.RoleAdmin)))
		{
			admin.GET("/subscriptions/:id", s.proxyTo(cfg.SubscriptionURL))

			// 変更フィード
			events := admin.Group("/events")
			{
				events.GET("/since", s.proxyTo(cfg.EventStoreURL))
				events.GET("/latest", s.proxyTo(cfg.EventStoreURL))
				events.GET("/document", s.proxyTo(cfg.EventStoreURL))
				events.GET("/collection/*collection", s.proxyTo(cfg.EventStoreURL))
			}
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// devTokenRequest は開発用トークン発行のリクエストボディ。
type devTokenRequest struct {
	UserID string `json:"userId" binding:"required"`
	Email  string `json:"email" binding:"omitempty,email"`
	Role   string `json:"role" binding:"required,oneof=admin provider client"`
}

// handleDevToken は指定したユーザーの開発用JWTトークンを発行するハンドラを返す。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userIdとrole（admin / provider / client）を指定してください"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, middleware.Identity{
			UserID: req.UserID,
			Email:  req.Email,
			Role:   req.Role,
		}, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("[Gateway] JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":  token,
			"userId": req.UserID,
		})
	}
}

// handleGetCurrentUser はトークンに含まれるユーザー情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"id":    middleware.GetUserID(c),
			"email": middleware.GetEmail(c),
			"role":  middleware.GetRole(c),
		})
	}
}

// proxyTo はリクエストを同じパスのまま内部サービスに転送するハンドラを返す。
func (s *Server) proxyTo(baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := baseURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			url += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, url)
	}
}

// doProxy はリクエストを内部サービスにプロキシする共通処理。
// 認証ヘッダーと送信元IPを転送し、レスポンスをそのまま返す。
func (s *Server) doProxy(c *gin.Context, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		return
	}

	if ct := c.GetHeader("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())

	resp, err := s.client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		log.Printf("[Gateway] プロキシエラー: url=%s, error=%v", url, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}
