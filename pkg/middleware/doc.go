// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 受信箱APIのJWT認証とロール判定、パニックリカバリ、
// 購読エンドポイントのCORS設定を含む。
package middleware
