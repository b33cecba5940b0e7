// Package subscription はメールマガジン購読の受付と確認メールの配信を扱う。
//
// 購読レコードは pending で作成され、確認メールの送信に成功すると active になる。
// active は終端状態で、以後どの経路からも変更されない。
// 同期の受付API（Subscribe）と変更イベント経由の非同期処理（HandleCreated）は
// 同じ配信処理を共有し、1件の購読につき送信は1回だけ行われる。
package subscription
