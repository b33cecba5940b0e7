package backend

import (
	"context"
	"testing"

	"github.com/nao1215/estatehub/internal/store/sqlite"
	"github.com/nao1215/estatehub/pkg/config"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("sqliteバックエンドを開ける", func(t *testing.T) {
		t.Parallel()

		b, err := Open(context.Background(), config.Store{Backend: config.BackendSQLite, SQLitePath: ":memory:"})
		if err != nil {
			t.Fatalf("Open()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		if _, ok := b.(*sqlite.Store); !ok {
			t.Errorf("Open() = %T, want *sqlite.Store", b)
		}
	})

	t.Run("未知のバックエンドはエラー", func(t *testing.T) {
		t.Parallel()

		if _, err := Open(context.Background(), config.Store{Backend: "postgres"}); err == nil {
			t.Fatal("エラーが返されなかった")
		}
	})
}
