package subscription

import (
	"time"

	"github.com/nao1215/estatehub/internal/delivery"
	"github.com/nao1215/estatehub/internal/model"
)

// Apply は配信結果を購読レコードに反映した新しいレコードを返す。
// 成功すればactiveにしてメッセージIDと送信日時を記録し、失敗すればpendingのまま最後のエラーを記録する。
// activeのレコードは変更せず、changedはfalseになる。
func Apply(sub model.EmailSubscription, out delivery.Outcome, now time.Time) (next model.EmailSubscription, changed bool) {
	if sub.IsTerminal() {
		return sub, false
	}
	next = sub
	next.UpdatedAt = now
	if out.Delivered {
		next.Status = model.StatusActive
		next.EmailMessageID = out.MessageID
		next.DeliveryChannel = out.Channel
		next.EmailSentAt = &now
		next.EmailError = ""
		return next, true
	}

	next.Status = model.StatusPending
	next.EmailFailedAt = &now
	if out.LastError != nil {
		next.EmailError = out.LastError.Error()
	} else {
		next.EmailError = delivery.ErrNoChannels.Error()
	}
	return next, true
}
