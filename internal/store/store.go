// Package store はストアバックエンド共通のエラーを定義する。
// 実装はsqlite / mongoサブパッケージにある。
package store

import "errors"

// ErrNotFound は指定したドキュメントが存在しないことを表す。
var ErrNotFound = errors.New("ドキュメントが見つかりません")

// ErrConflict は一意性の制約により書き込めなかったことを表す。
// 同じメールアドレスの有効な購読が既にある場合に返す。
var ErrConflict = errors.New("一意性の制約に違反しました")
