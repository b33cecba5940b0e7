// Package gateway はestatehubのAPI Gatewayを提供する。
//
// 外部に公開する唯一の入口として、受信箱API・購読API・変更フィードを
// 各サービスに転送する。受信箱はJWT認証、変更フィードと購読の参照は
// 管理者ロールを要求し、購読の申込だけは認証なしで受け付ける。
package gateway
