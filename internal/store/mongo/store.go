// Package mongo はMongoDBをドキュメントストアとして使うストア実装を提供する。
//
// users / serviceProviders / chats / supportChats はアプリ本体が書き込むコレクションを
// そのまま参照し、notifications / emailSubscriptions はこのパイプラインが書き込む。
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store"
)

// コレクション名
const (
	collNotifications = "notifications"
	collUsers         = "users"
	collProviders     = "serviceProviders"
	collChats         = "chats"
	collSupportChats  = "supportChats"
	collSubscriptions = "emailSubscriptions"
	collCursors       = "consumerCursors"
)

// Store はMongoDBをバックエンドとするストア。
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open はMongoDBに接続してStoreを返す。
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("MongoDBへの接続に失敗: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDBへの疎通確認に失敗: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Close は接続を閉じる。
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ensureIndexes はパイプラインが検索に使うインデックスを作成する。
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collNotifications).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("notificationsのインデックス作成に失敗: %w", err)
	}
	_, err = s.db.Collection(collSubscriptions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "status", Value: 1}}},
		// 正規化済みメールアドレスごとに有効な購読は1件まで
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("active_email_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": model.StatusActive}),
		},
	})
	if err != nil {
		return fmt.Errorf("emailSubscriptionsのインデックス作成に失敗: %w", err)
	}
	return nil
}

// findOne はfilterに一致するドキュメントを1件outにデコードする。
func (s *Store) findOne(ctx context.Context, coll string, filter bson.M, out any, what, id string) error {
	err := s.db.Collection(coll).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", what, id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %s の取得に失敗: %w", what, id, err)
	}
	return nil
}

// CreateNotification は通知を1件保存する。
func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	if _, err := s.db.Collection(collNotifications).InsertOne(ctx, n); err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return nil
}

// GetNotification はIDで通知を取得する。
func (s *Store) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.findOne(ctx, collNotifications, bson.M{"_id": id}, &n, "通知", id); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotifications は受信者の通知を新しい順に最大limit件返す。
func (s *Store) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	filter := bson.M{"userId": recipientID}
	if unreadOnly {
		filter["read"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))

	cursor, err := s.db.Collection(collNotifications).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := []model.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("通知一覧のデコードに失敗: %w", err)
	}
	return notifications, nil
}

// CountUnread は受信者の未読通知数を返す。
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	n, err := s.db.Collection(collNotifications).CountDocuments(ctx, bson.M{"userId": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("未読数の取得に失敗: %w", err)
	}
	return int(n), nil
}

// MarkRead は通知を既読にする。
func (s *Store) MarkRead(ctx context.Context, id string) error {
	if _, err := s.db.Collection(collNotifications).UpdateByID(ctx, id, bson.M{"$set": bson.M{"read": true}}); err != nil {
		return fmt.Errorf("通知の既読化に失敗: %w", err)
	}
	return nil
}

// MarkAllRead は受信者の未読通知をすべて既読にし、更新件数を返す。
func (s *Store) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.Collection(collNotifications).UpdateMany(ctx,
		bson.M{"userId": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("全通知の既読化に失敗: %w", err)
	}
	return res.ModifiedCount, nil
}

// GetUser はIDでユーザーを取得する。
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.findOne(ctx, collUsers, bson.M{"_id": id}, &u, "ユーザー", id); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListAdminIDs はロールがadminのユーザーIDを返す。
func (s *Store) ListAdminIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := s.db.Collection(collUsers).Find(ctx, bson.M{"role": model.RoleAdmin}, opts)
	if err != nil {
		return nil, fmt.Errorf("管理者一覧の取得に失敗: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("管理者一覧のデコードに失敗: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// GetProvider はIDで事業者を取得する。
func (s *Store) GetProvider(ctx context.Context, id string) (*model.ServiceProvider, error) {
	var p model.ServiceProvider
	if err := s.findOne(ctx, collProviders, bson.M{"_id": id}, &p, "事業者", id); err != nil {
		return nil, err
	}
	p = p.Normalize()
	return &p, nil
}

// ListApprovedProviders はサービス種別が一致する承認済みの事業者を返す。
// 既存ドキュメントには "Construction" のような表記が残っているため、表記揺れを$inで吸収する。
func (s *Store) ListApprovedProviders(ctx context.Context, serviceType model.ServiceType) ([]model.ServiceProvider, error) {
	filter := bson.M{
		"serviceType": bson.M{"$in": serviceTypeVariants(serviceType)},
		"isApproved":  true,
	}
	cursor, err := s.db.Collection(collProviders).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("事業者一覧の取得に失敗: %w", err)
	}
	defer cursor.Close(ctx)

	providers := []model.ServiceProvider{}
	if err := cursor.All(ctx, &providers); err != nil {
		return nil, fmt.Errorf("事業者一覧のデコードに失敗: %w", err)
	}
	for i := range providers {
		providers[i] = providers[i].Normalize()
	}
	return providers, nil
}

// serviceTypeVariants は保存されうるサービス種別の表記を列挙する。
func serviceTypeVariants(serviceType model.ServiceType) []string {
	lower := string(model.NormalizeServiceType(string(serviceType)))
	if lower == "" {
		return []string{""}
	}
	return []string{lower, strings.ToUpper(lower[:1]) + lower[1:], strings.ToUpper(lower)}
}

// GetChat はIDでチャットを取得する。participantsフィールドがない場合Participantsはnilになる。
func (s *Store) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	var c model.Chat
	if err := s.findOne(ctx, collChats, bson.M{"_id": id}, &c, "チャット", id); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetSupportChat はIDでサポートチャットを取得する。
func (s *Store) GetSupportChat(ctx context.Context, id string) (*model.SupportChat, error) {
	var c model.SupportChat
	if err := s.findOne(ctx, collSupportChats, bson.M{"_id": id}, &c, "サポートチャット", id); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveByEmail は正規化済みメールアドレスの有効な購読を返す。
func (s *Store) FindActiveByEmail(ctx context.Context, email string) (*model.EmailSubscription, error) {
	var sub model.EmailSubscription
	filter := bson.M{"email": email, "status": model.StatusActive}
	if err := s.findOne(ctx, collSubscriptions, filter, &sub, "購読", email); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription は購読レコードを保存する。
func (s *Store) CreateSubscription(ctx context.Context, sub *model.EmailSubscription) error {
	if _, err := s.db.Collection(collSubscriptions).InsertOne(ctx, sub); err != nil {
		return fmt.Errorf("購読の保存に失敗: %w", err)
	}
	return nil
}

// GetSubscription はIDで購読レコードを取得する。
func (s *Store) GetSubscription(ctx context.Context, id string) (*model.EmailSubscription, error) {
	var sub model.EmailSubscription
	if err := s.findOne(ctx, collSubscriptions, bson.M{"_id": id}, &sub, "購読", id); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ClaimSubscription は未担当かつpendingの購読をclaimantの担当にする。
// 条件付きの単一ドキュメント更新のため同時に1者しか成功しない。
func (s *Store) ClaimSubscription(ctx context.Context, id, claimant string, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": model.StatusPending,
		"$or": bson.A{
			bson.M{"claimedBy": bson.M{"$exists": false}},
			bson.M{"claimedBy": ""},
		},
	}
	update := bson.M{"$set": bson.M{"claimedBy": claimant, "updatedAt": now}}
	res, err := s.db.Collection(collSubscriptions).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("購読の担当設定に失敗: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// SaveDeliveryOutcome は配信結果を保存する。activeのレコードは変更しない。
// 同じメールアドレスの有効な購読が既にある場合は部分一意インデックスに阻まれ、store.ErrConflictを返す。
func (s *Store) SaveDeliveryOutcome(ctx context.Context, sub *model.EmailSubscription) (bool, error) {
	set := bson.M{
		"status":          sub.Status,
		"emailMessageId":  sub.EmailMessageID,
		"emailError":      sub.EmailError,
		"deliveryChannel": sub.DeliveryChannel,
		"updatedAt":       sub.UpdatedAt,
	}
	if sub.EmailSentAt != nil {
		set["emailSentAt"] = *sub.EmailSentAt
	}
	if sub.EmailFailedAt != nil {
		set["emailFailedAt"] = *sub.EmailFailedAt
	}
	filter := bson.M{"_id": sub.ID, "status": bson.M{"$ne": model.StatusActive}}
	res, err := s.db.Collection(collSubscriptions).UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("購読 %s を有効にできません: %w", sub.ID, store.ErrConflict)
		}
		return false, fmt.Errorf("配信結果の保存に失敗: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// cursorDoc はトリガーソースの読み取り位置。
type cursorDoc struct {
	Name      string    `bson:"_id"`
	Seq       int64     `bson:"seq"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// LoadCursor は名前付きの読み取り位置を返す。保存されていない場合は0を返す。
func (s *Store) LoadCursor(ctx context.Context, name string) (int64, error) {
	var doc cursorDoc
	err := s.db.Collection(collCursors).FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("読み取り位置 %s の取得に失敗: %w", name, err)
	}
	return doc.Seq, nil
}

// SaveCursor は名前付きの読み取り位置を保存する。
func (s *Store) SaveCursor(ctx context.Context, name string, seq int64) error {
	_, err := s.db.Collection(collCursors).UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"seq": seq, "updatedAt": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("読み取り位置 %s の保存に失敗: %w", name, err)
	}
	return nil
}
