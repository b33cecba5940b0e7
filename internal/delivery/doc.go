// Package delivery はメール配信チャネルのチェーンを提供する。
//
// チェーンは明示的に順序付けたチャネルを先頭から試行し、最初に成功したチャネルの結果を返す。
// 設定されていないチャネルは失敗したチャネルと同じく読み飛ばす。
// チャネルは試行の間で接続状態を保持しない。
package delivery
