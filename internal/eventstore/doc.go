// Package eventstore は変更フィードサービスの内部実装を提供する。
//
// ドキュメントストアへの書き込み1件ごとの変更イベント（created / updated / deleted）を
// 追記のみで永続化し、単調増加するseqを採番する。
// 通知サービスはseqをカーソルとしてフィードをポーリングする。
// Kafkaが設定されている場合は追記したイベントをトピックにも書き込む。
//
// 主な機能:
//   - イベントの追記（Append）
//   - seq以降のイベント取得（ポーリング用）
//   - コレクションによるイベント取得
//   - ドキュメントパスによるイベント取得
package eventstore
