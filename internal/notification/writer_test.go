package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nao1215/estatehub/internal/model"
)

func TestWriter_Write(t *testing.T) {
	t.Parallel()

	t.Run("未読でサーバー時刻の通知を作成すること", func(t *testing.T) {
		t.Parallel()

		st := newFakeStore()
		w := NewWriter(st, nil)
		fixed := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		w.now = func() time.Time { return fixed }
		w.newID = func() string { return "n-1" }

		res := w.Write(context.Background(), Draft{RecipientID: "u-1", Title: "T", Message: "M", Category: model.CategoryInfo})
		if res.Err != nil || res.NotificationID != "n-1" {
			t.Fatalf("Write() = %+v", res)
		}
		got := st.written()
		if len(got) != 1 || got[0].Read || !got[0].CreatedAt.Equal(fixed) {
			t.Errorf("通知 = %+v", got)
		}
	})

	t.Run("受信者が空の下書きは書き込まないこと", func(t *testing.T) {
		t.Parallel()

		st := newFakeStore()
		res := NewWriter(st, nil).Write(context.Background(), Draft{Title: "T"})
		if !errors.Is(res.Err, ErrEmptyRecipient) {
			t.Errorf("Err = %v, want ErrEmptyRecipient", res.Err)
		}
		if len(st.written()) != 0 {
			t.Error("通知が書き込まれた")
		}
	})
}

func TestWriter_FanOut(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.failFor["u-2"] = true
	st.panicFor["u-3"] = true
	w := NewWriter(st, nil)

	drafts := draftsFor([]string{"u-1", "u-2", "u-3", "u-4"}, "T", "M", model.CategoryInfo, "")
	results := w.FanOut(context.Background(), drafts)

	if len(results) != 4 {
		t.Fatalf("結果 = %d件, want 4件", len(results))
	}
	for i, want := range []string{"u-1", "u-2", "u-3", "u-4"} {
		if results[i].RecipientID != want {
			t.Errorf("results[%d].RecipientID = %q, want %q", i, results[i].RecipientID, want)
		}
	}
	if results[0].Err != nil || results[3].Err != nil {
		t.Errorf("成功すべき書き込みが失敗: %v / %v", results[0].Err, results[3].Err)
	}
	if results[1].Err == nil {
		t.Error("u-2の書き込みエラーが記録されていない")
	}
	if results[2].Err == nil {
		t.Error("u-3のパニックが記録されていない")
	}
	if len(st.written()) != 2 {
		t.Errorf("書き込まれた通知 = %d件, want 2件", len(st.written()))
	}
}

// barrierStore は遅い受信者への書き込みを、他の受信者の書き込みがすべて届くまで止めるストア。
type barrierStore struct {
	slow    string
	others  int
	arrived chan string
	timeout time.Duration
}

func (s *barrierStore) CreateNotification(_ context.Context, n *model.Notification) error {
	if n.RecipientID != s.slow {
		s.arrived <- n.RecipientID
		return nil
	}
	deadline := time.After(s.timeout)
	for i := 0; i < s.others; i++ {
		select {
		case <-s.arrived:
		case <-deadline:
			return fmt.Errorf("%d件目以降の書き込みが届かない", i+1)
		}
	}
	return nil
}

func TestWriter_FanOut_Concurrent(t *testing.T) {
	t.Parallel()

	t.Run("遅い受信者の書き込みが他の受信者の書き込みを止めないこと", func(t *testing.T) {
		t.Parallel()

		recipients := []string{"slow", "u-1", "u-2", "u-3"}
		st := &barrierStore{
			slow:    "slow",
			others:  len(recipients) - 1,
			arrived: make(chan string, len(recipients)),
			timeout: 2 * time.Second,
		}
		w := NewWriter(st, nil)

		results := w.FanOut(context.Background(), draftsFor(recipients, "T", "M", model.CategoryInfo, ""))
		for _, res := range results {
			if res.Err != nil {
				t.Errorf("%s: Err = %v, 書き込みが直列に行われている", res.RecipientID, res.Err)
			}
		}
	})
}
