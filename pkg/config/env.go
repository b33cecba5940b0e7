// Package config は環境変数からサービス設定を読み込む。
// 各サービスは自身のConfig構造体にここで定義した共通の設定を埋め込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ParseEnv は環境変数をtargetの構造体タグに従って読み込む。
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ストアのバックエンド種別
const (
	// BackendSQLite はローカルのSQLiteファイルを使う。
	BackendSQLite = "sqlite"
	// BackendMongo はMongoDBをドキュメントストアとして使う。
	BackendMongo = "mongo"
)

// Store は通知・購読・ディレクトリを保存するストアの設定。
type Store struct {
	// Backend はストアのバックエンド（sqlite / mongo）。
	Backend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	// SQLitePath はSQLiteファイルのパス。":memory:" でインメモリになる。
	SQLitePath string `env:"SQLITE_PATH" envDefault:"/data/estatehub.db"`
	// MongoURI はMongoDBの接続URI。
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	// MongoDatabase はMongoDBのデータベース名。
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"estatehub"`
}

// Validate はバックエンド種別が既知の値かを検証する。
func (s Store) Validate() error {
	switch s.Backend {
	case BackendSQLite, BackendMongo:
		return nil
	default:
		return fmt.Errorf("未知のストアバックエンドです: %q", s.Backend)
	}
}

// SQLiteDSN はmodernc.org/sqlite向けのDSNを返す。
// ファイルの場合はWALとbusy_timeoutを有効にする。
func (s Store) SQLiteDSN() string {
	return SQLiteDSN(s.SQLitePath)
}

// SQLiteDSN はパスからmodernc.org/sqlite向けのDSNを組み立てる。
func SQLiteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Kafka はKafkaの接続設定。
type Kafka struct {
	// Brokers はブローカーのアドレス一覧。空の場合Kafkaを使わない。
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// Topic は変更イベントを流すトピック。
	Topic string `env:"KAFKA_TOPIC" envDefault:"estatehub.document-changes"`
	// GroupID はコンシューマーグループID。
	GroupID string `env:"KAFKA_GROUP_ID" envDefault:"estatehub-notification"`
}

// Enabled はKafkaが設定されているかを返す。
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Telemetry はトレースの設定。
type Telemetry struct {
	// OTLPEndpoint はOTLP/HTTPエクスポーターの送信先URL。空の場合トレースを無効にする。
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// SampleRatio はサンプリング比率（0〜1）。
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1"`
}

// Delivery はメール配信チャネルチェーンの設定。
// Channelsに並べた順序でチャネルを試行する。
type Delivery struct {
	// Channels は試行順に並べたチャネル名（resend / mailgun / smtp）。
	Channels []string `env:"DELIVERY_CHANNELS" envSeparator:"," envDefault:"resend,mailgun,smtp"`
	// From は送信元アドレス。
	From string `env:"DELIVERY_FROM" envDefault:"EstateHub <newsletter@estatehub.example.com>"`
	// Timeout は1チャネルあたりの送信タイムアウト。
	Timeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"15s"`

	// ResendURL はResend互換APIのベースURL。
	ResendURL string `env:"RESEND_API_URL" envDefault:"https://api.resend.com"`
	// ResendAPIKey はResend互換APIのキー。空の場合チャネルは未設定扱い。
	ResendAPIKey string `env:"RESEND_API_KEY"`

	// MailgunURL はMailgun互換APIのベースURL。
	MailgunURL string `env:"MAILGUN_API_URL" envDefault:"https://api.mailgun.net"`
	// MailgunDomain は送信ドメイン。
	MailgunDomain string `env:"MAILGUN_DOMAIN"`
	// MailgunAPIKey はMailgun互換APIのキー。
	MailgunAPIKey string `env:"MAILGUN_API_KEY"`

	// SMTPHost はSMTPサーバーのホスト名。
	SMTPHost string `env:"SMTP_HOST"`
	// SMTPPort はSMTPサーバーのポート。
	SMTPPort int `env:"SMTP_PORT" envDefault:"587"`
	// SMTPUsername はSMTP認証のユーザー名。空の場合認証しない。
	SMTPUsername string `env:"SMTP_USERNAME"`
	// SMTPPassword はSMTP認証のパスワード。
	SMTPPassword string `env:"SMTP_PASSWORD"`
}
