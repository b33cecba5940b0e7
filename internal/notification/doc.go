// Package notification はドキュメントの変更イベントからアプリ内通知を生成する。
//
// Dispatcherが変更イベントを(コレクション, 種別)でハンドラーに振り分け、
// ハンドラーはResolverで受信者を決め、Writerで受信者ごとに通知を並行して書き込む。
// どの段階の失敗もトリガー元には伝播せず、Reportとメトリクスに記録する。
//
// 受信箱API（一覧・未読数・既読化）もこのパッケージのServerが提供する。
package notification
