package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store"
)

// 受信者解決の分岐名
const (
	BranchAdmins           = "admins"
	BranchAssignedProvider = "assigned-provider"
	BranchBroadcastPool    = "broadcast-pool"
	BranchSubmitter        = "submitter"
	BranchParticipant      = "participant"
)

// ErrNoRecipient は受信者を決められなかったことを表す。
var ErrNoRecipient = errors.New("受信者が見つかりません")

// Resolution は受信者解決の結果。
// 解決に失敗した場合もUserIDsは空のまま返り、Errに理由が入る。
type Resolution struct {
	// Branch は解決に使った分岐。
	Branch string
	// UserIDs は重複を除いた受信者のユーザーID。
	UserIDs []string
	// Err は解決に失敗した理由。
	Err error
}

// Resolver は通知の受信者を決める。
// どのメソッドもエラーを返さず、失敗は空の受信者集合としてResolutionに記録する。
type Resolver struct {
	directory Directory
	providers ProviderStore
}

// NewResolver は新しいResolverを生成する。
func NewResolver(directory Directory, providers ProviderStore) *Resolver {
	return &Resolver{directory: directory, providers: providers}
}

// Admins はロールがadminの全ユーザーを返す。
func (r *Resolver) Admins(ctx context.Context) Resolution {
	ids, err := r.directory.ListAdminIDs(ctx)
	if err != nil {
		return failed(BranchAdmins, fmt.Errorf("管理者の取得に失敗: %w", err))
	}
	return Resolution{Branch: BranchAdmins, UserIDs: dedupe(ids)}
}

// AssignedProvider は事業者レコードのuserIdを返す。
// レコードがない、またはuserIdが空の場合は空集合になる。
func (r *Resolver) AssignedProvider(ctx context.Context, providerID string) Resolution {
	if providerID == "" {
		return failed(BranchAssignedProvider, ErrNoRecipient)
	}
	p, err := r.providers.GetProvider(ctx, providerID)
	if err != nil {
		return failed(BranchAssignedProvider, fmt.Errorf("事業者 %s の取得に失敗: %w", providerID, err))
	}
	if p.UserID == "" {
		return failed(BranchAssignedProvider, fmt.Errorf("事業者 %s にuserIdがありません: %w", providerID, ErrNoRecipient))
	}
	return Resolution{Branch: BranchAssignedProvider, UserIDs: []string{p.UserID}}
}

// BroadcastPool はサービス種別が一致する承認済み事業者のuserIdを返す。
// 事業者レコードごとに1件となるため、同じuserIdを持つ複数のレコードはそれぞれ数える。
func (r *Resolver) BroadcastPool(ctx context.Context, serviceType model.ServiceType) Resolution {
	serviceType = model.NormalizeServiceType(string(serviceType))
	if serviceType == "" {
		return failed(BranchBroadcastPool, fmt.Errorf("サービス種別が空です: %w", ErrNoRecipient))
	}
	providers, err := r.providers.ListApprovedProviders(ctx, serviceType)
	if err != nil {
		return failed(BranchBroadcastPool, fmt.Errorf("事業者一覧の取得に失敗: %w", err))
	}
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		if p.UserID != "" && p.IsApproved && model.NormalizeServiceType(string(p.ServiceType)) == serviceType {
			ids = append(ids, p.UserID)
		}
	}
	return Resolution{Branch: BranchBroadcastPool, UserIDs: ids}
}

// Submitter は別名のうち最初に空でないIDを返す。
func (r *Resolver) Submitter(ids ...string) Resolution {
	id := model.FirstNonEmpty(ids...)
	if id == "" {
		return failed(BranchSubmitter, ErrNoRecipient)
	}
	return Resolution{Branch: BranchSubmitter, UserIDs: []string{id}}
}

// Participant はチャット参加者1名を受信者とする。送信者自身や空のIDは空集合になる。
func (r *Resolver) Participant(userID, senderID string) Resolution {
	if userID == "" || userID == senderID {
		return failed(BranchParticipant, ErrNoRecipient)
	}
	return Resolution{Branch: BranchParticipant, UserIDs: []string{userID}}
}

// DisplayName はユーザーの表示名を返す。取得に失敗した場合は "A user" を返す。
func (r *Resolver) DisplayName(ctx context.Context, userID string) string {
	if userID == "" {
		return model.FallbackDisplayName
	}
	u, err := r.directory.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[Resolver] ユーザー %s の取得に失敗: %v", userID, err)
		}
		return model.FallbackDisplayName
	}
	return u.PreferredName()
}

// failed は失敗した解決結果を返す。
func failed(branch string, err error) Resolution {
	return Resolution{Branch: branch, Err: err}
}

// dedupe は空文字列と重複を除き、出現順を保ったスライスを返す。
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
