package eventstore

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/event"
	"github.com/nao1215/estatehub/pkg/httpserver"
	"github.com/nao1215/estatehub/pkg/middleware"
)

// Config はEvent Storeサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8084"`
	// DBPath はイベントを保存するSQLiteファイルのパス。
	DBPath string `env:"EVENTSTORE_DB_PATH" envDefault:"/data/eventstore.db"`
	// Kafka は追記したイベントを書き込むトピックの設定。Brokersが空なら書き込まない。
	Kafka config.Kafka
	// Telemetry はトレースの設定。
	Telemetry config.Telemetry
}

// Publisher は追記したイベントを外部に配信する。
type Publisher interface {
	Publish(ctx context.Context, ev *event.Event) error
}

// Server はEvent StoreサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はイベントの保存先。
	store *Store
	// mirror はKafkaへの書き込み先。nilの場合は書き込まない。
	mirror Publisher
	// closers は停止時に閉じるリソース。
	closers []func() error
}

// NewServer は設定からEvent Storeサーバーを生成する。
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	store, err := OpenStore(ctx, config.SQLiteDSN(cfg.DBPath))
	if err != nil {
		return nil, err
	}
	s := newServer(cfg.Port, store, nil)
	s.closers = append(s.closers, store.Close)

	if cfg.Kafka.Enabled() {
		mirror := NewMirror(cfg.Kafka)
		s.mirror = mirror
		s.closers = append(s.closers, mirror.Close)
		log.Printf("[EventStore] Kafkaトピック %s にイベントを書き込みます", cfg.Kafka.Topic)
	}
	return s, nil
}

// newServer はストアとPublisherを指定してサーバーを組み立てる。
func newServer(port string, store *Store, mirror Publisher) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router: router,
		port:   port,
		store:  store,
		mirror: mirror,
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされたら停止する。
func (s *Server) Run(ctx context.Context) error {
	defer s.close()
	return httpserver.Serve(ctx, httpserver.New(s.port, s.router, "eventstore"))
}

func (s *Server) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Printf("[EventStore] リソースのクローズに失敗: %v", err)
		}
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		events := api.Group("/events")
		{
			// イベントの追記
			events.POST("", s.handleAppendEvent())
			// seq以降のイベント取得（クエリパラメータ: after, limit）
			events.GET("/since", s.handleGetEventsSince())
			// コレクションによるイベント取得
			events.GET("/collection/*collection", s.handleGetEventsByCollection())
			// ドキュメントパスによるイベント取得（クエリパラメータ: path）
			events.GET("/document", s.handleGetEventsByDocument())
			// 最新seqの取得
			events.GET("/latest", s.handleGetLatestSeq())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "eventstore"})
	})
}

// appendResponse はイベント追記のレスポンス。
type appendResponse struct {
	// ID はイベントID。
	ID string `json:"id"`
	// Seq は採番されたseq。
	Seq int64 `json:"seq"`
	// Created は新たに追記されたかどうか。同じIDが既にあればfalse。
	Created bool `json:"created"`
}

// handleAppendEvent はイベントの追記を処理するハンドラを返す。
func (s *Server) handleAppendEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev event.Event
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		stored, created, err := s.store.Append(c.Request.Context(), &ev)
		if err != nil {
			if errors.Is(err, event.ErrInvalidPath) || errors.Is(err, event.ErrMissingSnapshot) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			log.Printf("[EventStore] イベントの追記に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの追記に失敗しました"})
			return
		}

		if created && s.mirror != nil {
			// トピックへの書き込みに失敗してもフィードには残るので追記は成功とする
			if err := s.mirror.Publish(c.Request.Context(), stored); err != nil {
				log.Printf("[EventStore] イベント %s のKafkaへの書き込みに失敗: %v", stored.ID, err)
			}
		}

		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		c.JSON(status, appendResponse{ID: stored.ID, Seq: stored.Seq, Created: created})
	}
}

// handleGetEventsSince はseq以降のイベント取得を処理するハンドラを返す。
func (s *Server) handleGetEventsSince() gin.HandlerFunc {
	return func(c *gin.Context) {
		after, limit, ok := parseRange(c)
		if !ok {
			return
		}
		events, err := s.store.ListSince(c.Request.Context(), after, limit)
		if err != nil {
			log.Printf("[EventStore] イベントの取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// handleGetEventsByCollection はコレクションによるイベント取得を処理するハンドラを返す。
// サブコレクション（例: chats/messages）も指定できるようにワイルドカードで受け取る。
func (s *Server) handleGetEventsByCollection() gin.HandlerFunc {
	return func(c *gin.Context) {
		collection := event.Collection(strings.Trim(c.Param("collection"), "/"))
		if collection == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "コレクションを指定してください"})
			return
		}
		after, limit, ok := parseRange(c)
		if !ok {
			return
		}
		events, err := s.store.ListByCollection(c.Request.Context(), collection, after, limit)
		if err != nil {
			log.Printf("[EventStore] イベントの取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// handleGetEventsByDocument はドキュメントパスによるイベント取得を処理するハンドラを返す。
func (s *Server) handleGetEventsByDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.Trim(c.Query("path"), "/")
		if _, _, err := event.ParsePath(path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		events, err := s.store.ListByDocument(c.Request.Context(), path)
		if err != nil {
			log.Printf("[EventStore] イベントの取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// handleGetLatestSeq は最新seqの取得を処理するハンドラを返す。
func (s *Server) handleGetLatestSeq() gin.HandlerFunc {
	return func(c *gin.Context) {
		seq, err := s.store.LatestSeq(c.Request.Context())
		if err != nil {
			log.Printf("[EventStore] 最新seqの取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "最新seqの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"seq": seq})
	}
}

// parseRange はafterとlimitのクエリパラメータを読み取る。不正な場合は400を返してfalseを返す。
func parseRange(c *gin.Context) (int64, int, bool) {
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "afterは0以上の整数で指定してください"})
		return 0, 0, false
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limitは1以上の整数で指定してください"})
		return 0, 0, false
	}
	return after, limit, true
}
