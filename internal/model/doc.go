// Package model はドキュメントストアのドキュメントと、パイプラインが扱う正規化済みの型を定義する。
//
// ドキュメント構造体（〜Doc）はストアに実在するフィールドの揺れ（別名・大文字小文字）を
// そのまま受け取り、Resolveメソッドで一度だけ正規化した型に変換する。
package model
