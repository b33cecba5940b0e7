package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPath はドキュメントパスの形式が不正であることを表す。
	ErrInvalidPath = errors.New("ドキュメントパスが不正です")
	// ErrMissingSnapshot は遷移の種類に必要なスナップショットが欠けていることを表す。
	ErrMissingSnapshot = errors.New("スナップショットが不足しています")
)

// New は新しい変更イベントを生成する。
// before/afterにはドキュメントの構造体を渡す。nilの場合はスナップショットなしとして扱う。
func New(kind Kind, documentPath string, before, after any) (*Event, error) {
	collection, documentID, err := ParsePath(documentPath)
	if err != nil {
		return nil, err
	}

	beforeJSON, err := marshalSnapshot(before)
	if err != nil {
		return nil, fmt.Errorf("更新前スナップショットのシリアライズに失敗: %w", err)
	}
	afterJSON, err := marshalSnapshot(after)
	if err != nil {
		return nil, fmt.Errorf("更新後スナップショットのシリアライズに失敗: %w", err)
	}

	ev := &Event{
		ID:           uuid.New().String(),
		Kind:         kind,
		Collection:   collection,
		DocumentID:   documentID,
		DocumentPath: strings.Trim(documentPath, "/"),
		Before:       beforeJSON,
		After:        afterJSON,
		CreatedAt:    time.Now().UTC(),
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// Validate はイベントがトリガー境界の契約を満たしているかを検証する。
// 更新イベントは必ずBeforeとAfterを持つ。
func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("未知のイベント種別です: %q", e.Kind)
	}
	if _, _, err := ParsePath(e.DocumentPath); err != nil {
		return err
	}
	switch e.Kind {
	case KindCreated:
		if len(e.After) == 0 {
			return fmt.Errorf("作成イベントにafterがありません: %w", ErrMissingSnapshot)
		}
	case KindUpdated:
		if len(e.Before) == 0 || len(e.After) == 0 {
			return fmt.Errorf("更新イベントにbefore/afterがありません: %w", ErrMissingSnapshot)
		}
	case KindDeleted:
		if len(e.Before) == 0 {
			return fmt.Errorf("削除イベントにbeforeがありません: %w", ErrMissingSnapshot)
		}
	}
	return nil
}

// ParsePath はドキュメントパスからコレクションとドキュメントIDを取り出す。
// パスは "collection/id" または "collection/id/sub/id" の形式で、偶数個の要素を持つ。
func ParsePath(documentPath string) (Collection, string, error) {
	parts := strings.Split(strings.Trim(documentPath, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, documentPath)
	}
	names := make([]string, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		if parts[i] == "" || parts[i+1] == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, documentPath)
		}
		names = append(names, parts[i])
	}
	return Collection(strings.Join(names, "/")), parts[len(parts)-1], nil
}

// ParentID はサブコレクションのドキュメントパスから親ドキュメントのIDを返す。
// "chats/c1/messages/m1" なら "c1" を返す。親がない場合は空文字列を返す。
func ParentID(documentPath string) string {
	parts := strings.Split(strings.Trim(documentPath, "/"), "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[len(parts)-3]
}

// DecodeAfter はイベントの更新後スナップショットを指定された型にデシリアライズする。
func DecodeAfter[T any](e *Event) (*T, error) {
	return decodeSnapshot[T](e.After, "after")
}

// DecodeBefore はイベントの更新前スナップショットを指定された型にデシリアライズする。
func DecodeBefore[T any](e *Event) (*T, error) {
	return decodeSnapshot[T](e.Before, "before")
}

func decodeSnapshot[T any](raw json.RawMessage, name string) (*T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%sスナップショットが空です: %w", name, ErrMissingSnapshot)
	}
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%sスナップショットのデシリアライズに失敗: %w", name, err)
	}
	return &data, nil
}
