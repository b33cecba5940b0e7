package subscription

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/estatehub/internal/store"
)

var (
	// ErrInvalidEmail はメールアドレスの形式が不正であることを表す。
	ErrInvalidEmail = errors.New("メールアドレスの形式が不正です")
	// ErrAlreadySubscribed は同じメールアドレスの有効な購読が既にあることを表す。
	ErrAlreadySubscribed = errors.New("既に購読済みです")
	// ErrDeliveryFailed は確認メールをどのチャネルでも送信できなかったことを表す。
	ErrDeliveryFailed = errors.New("確認メールの送信に失敗しました")
	// ErrNotFound は購読レコードが存在しないことを表す。
	ErrNotFound = store.ErrNotFound
)

// 呼び出し元に返すエラーコード
const (
	CodeInvalidArgument = "invalid-argument"
	CodeAlreadyExists   = "already-exists"
	CodeNotFound        = "not-found"
	CodeInternal        = "internal"
)

// Error は呼び出し元に返すコード付きのエラー。
// 入力の誤り、重複、受付後の配信失敗を区別する。
type Error struct {
	// Code はエラーコード。
	Code string
	// Message は利用者向けのメッセージ。
	Message string
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus はエラーコードに対応するHTTPステータスを返す。
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func invalidArgument(message string, err error) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message, Err: err}
}

func alreadyExists(message string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: message, Err: ErrAlreadySubscribed}
}

func internal(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}
