package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store/sqlite"
	"github.com/nao1215/estatehub/pkg/config"
	"github.com/nao1215/estatehub/pkg/middleware"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

const testJWTSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はインメモリSQLiteを使う受信箱APIのサーバーを構築する。
func setupTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()

	st := openTestStore(t)
	return newServer("0", testJWTSecret, st, telemetry.NewMetrics(nil)), st
}

// createTestNotification はテスト用に通知をストアへ直接保存するヘルパー関数。
func createTestNotification(t *testing.T, st *sqlite.Store, id, recipientID string, createdAt time.Time) {
	t.Helper()

	n := &model.Notification{
		ID:          id,
		RecipientID: recipientID,
		Title:       "New message",
		Message:     "Hana: Hi",
		Category:    model.CategoryInfo,
		CreatedAt:   createdAt,
	}
	if err := st.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("テスト用通知の作成に失敗: %v", err)
	}
}

// doRequest はuserIDのJWTを付けてリクエストを実行するヘルパー関数。userIDが空なら認証なし。
func doRequest(t *testing.T, s *Server, method, path, userID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		token, err := middleware.GenerateJWT(testJWTSecret, middleware.Identity{UserID: userID, Role: string(model.RoleClient)}, time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeBody[map[string]string](t, w); got["service"] != "notification" {
		t.Errorf("service = %q, want notification", got["service"])
	}
}

func TestHandleList(t *testing.T) {
	t.Parallel()

	t.Run("自分宛ての通知だけを新しい順に返すこと", func(t *testing.T) {
		t.Parallel()

		s, st := setupTestServer(t)
		base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		createTestNotification(t, st, "n-1", "user-1", base)
		createTestNotification(t, st, "n-2", "user-1", base.Add(time.Minute))
		createTestNotification(t, st, "n-3", "user-2", base)

		w := doRequest(t, s, http.MethodGet, "/api/v1/notifications", "user-1")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, body=%s", w.Code, w.Body.String())
		}
		got := decodeBody[[]model.Notification](t, w)
		if len(got) != 2 || got[0].ID != "n-2" || got[1].ID != "n-1" {
			t.Errorf("通知一覧 = %+v", got)
		}
	})

	t.Run("limitで件数を絞れること", func(t *testing.T) {
		t.Parallel()

		s, st := setupTestServer(t)
		now := time.Now().UTC()
		for i, id := range []string{"n-1", "n-2", "n-3"} {
			createTestNotification(t, st, id, "user-1", now.Add(time.Duration(i)*time.Second))
		}

		w := doRequest(t, s, http.MethodGet, "/api/v1/notifications?limit=2", "user-1")
		if got := decodeBody[[]model.Notification](t, w); len(got) != 2 {
			t.Errorf("件数 = %d, want 2", len(got))
		}
	})

	t.Run("不正なlimitは400を返すこと", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		for _, q := range []string{"0", "-1", "abc"} {
			w := doRequest(t, s, http.MethodGet, "/api/v1/notifications?limit="+q, "user-1")
			if w.Code != http.StatusBadRequest {
				t.Errorf("limit=%s: ステータスコード = %d, want 400", q, w.Code)
			}
		}
	})

	t.Run("トークンがなければ401を返すこと", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		w := doRequest(t, s, http.MethodGet, "/api/v1/notifications", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want 401", w.Code)
		}
	})
}

func TestHandleUnread(t *testing.T) {
	t.Parallel()

	s, st := setupTestServer(t)
	now := time.Now().UTC()
	createTestNotification(t, st, "n-1", "user-1", now)
	createTestNotification(t, st, "n-2", "user-1", now)
	if err := st.MarkRead(context.Background(), "n-1"); err != nil {
		t.Fatal(err)
	}

	t.Run("未読の通知だけを返すこと", func(t *testing.T) {
		t.Parallel()

		got := decodeBody[[]model.Notification](t, doRequest(t, s, http.MethodGet, "/api/v1/notifications/unread", "user-1"))
		if len(got) != 1 || got[0].ID != "n-2" || got[0].Read {
			t.Errorf("未読一覧 = %+v", got)
		}
	})

	t.Run("未読数を返すこと", func(t *testing.T) {
		t.Parallel()

		got := decodeBody[map[string]int](t, doRequest(t, s, http.MethodGet, "/api/v1/notifications/unread/count", "user-1"))
		if got["count"] != 1 {
			t.Errorf("count = %d, want 1", got["count"])
		}
	})
}

func TestHandleMarkAsRead(t *testing.T) {
	t.Parallel()

	t.Run("自分の通知を既読にできること", func(t *testing.T) {
		t.Parallel()

		s, st := setupTestServer(t)
		createTestNotification(t, st, "n-1", "user-1", time.Now().UTC())

		w := doRequest(t, s, http.MethodPut, "/api/v1/notifications/n-1/read", "user-1")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, body=%s", w.Code, w.Body.String())
		}
		n, err := st.GetNotification(context.Background(), "n-1")
		if err != nil || !n.Read {
			t.Errorf("GetNotification() = %+v, %v", n, err)
		}
	})

	t.Run("存在しない通知は404を返すこと", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		w := doRequest(t, s, http.MethodPut, "/api/v1/notifications/missing/read", "user-1")
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want 404", w.Code)
		}
	})

	t.Run("他人の通知は403を返し既読にしないこと", func(t *testing.T) {
		t.Parallel()

		s, st := setupTestServer(t)
		createTestNotification(t, st, "n-1", "user-2", time.Now().UTC())

		w := doRequest(t, s, http.MethodPut, "/api/v1/notifications/n-1/read", "user-1")
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want 403", w.Code)
		}
		if n, _ := st.GetNotification(context.Background(), "n-1"); n == nil || n.Read {
			t.Error("他人の通知が既読になった")
		}
	})
}

func TestHandleMarkAllAsRead(t *testing.T) {
	t.Parallel()

	s, st := setupTestServer(t)
	now := time.Now().UTC()
	createTestNotification(t, st, "n-1", "user-1", now)
	createTestNotification(t, st, "n-2", "user-1", now)
	createTestNotification(t, st, "n-3", "user-2", now)

	w := doRequest(t, s, http.MethodPut, "/api/v1/notifications/read-all", "user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, body=%s", w.Code, w.Body.String())
	}
	if got := decodeBody[map[string]any](t, w); got["updated"] != float64(2) {
		t.Errorf("updated = %v, want 2", got["updated"])
	}
	if n, _ := st.CountUnread(context.Background(), "user-2"); n != 1 {
		t.Errorf("他のユーザーの未読数 = %d, want 1", n)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	s.metrics.HandlerEvent(HandlerListingCreated, telemetry.OutcomeOK)

	w := doRequest(t, s, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), `estatehub_handler_events_total{handler="ListingCreated",outcome="ok"} 1`) {
		t.Errorf("メトリクスにハンドラーの結果がない: %s", w.Body.String())
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := Config{
		TriggerSource: SourceEventStore,
		EventStoreURL: "http://localhost:8084",
		Store:         config.Store{Backend: "sqlite", SQLitePath: ":memory:"},
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "Event Storeのポーリング", modify: func(*Config) {}},
		{name: "Event StoreのURLがない", modify: func(c *Config) { c.EventStoreURL = "" }, wantErr: true},
		{name: "Kafkaのブローカーがない", modify: func(c *Config) { c.TriggerSource = SourceKafka }, wantErr: true},
		{name: "Kafkaのブローカーがある", modify: func(c *Config) {
			c.TriggerSource = SourceKafka
			c.Kafka = config.Kafka{Brokers: []string{"localhost:9092"}, Topic: "changes"}
		}},
		{name: "未知のトリガーソース", modify: func(c *Config) { c.TriggerSource = "pubsub" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
