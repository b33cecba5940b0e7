package model

// Chat はユーザー間チャットのドキュメント。
type Chat struct {
	// ID はチャットID。
	ID string `json:"id" db:"id" bson:"_id"`
	// Participants は参加者のユーザーID。通常2名。
	Participants []string `json:"participants" db:"-" bson:"participants"`
}

// OtherParticipant はsender以外の参加者を返す。見つからない場合は空文字列を返す。
func (c *Chat) OtherParticipant(senderID string) string {
	for _, p := range c.Participants {
		if p != "" && p != senderID {
			return p
		}
	}
	return ""
}

// ChatMessageDoc はchats/{chatId}/messagesのドキュメント。
type ChatMessageDoc struct {
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	Text       string `json:"text,omitempty"`
}

// SupportChat はユーザーと管理者のサポートチャット。
type SupportChat struct {
	// ID はサポートチャットID。
	ID string `json:"id" db:"id" bson:"_id"`
	// UserID は問い合わせ元のユーザーID。
	UserID string `json:"userId" db:"user_id" bson:"userId"`
	// AssignedAdminID は担当管理者のユーザーID（任意）。
	AssignedAdminID string `json:"assignedAdminId,omitempty" db:"assigned_admin_id" bson:"assignedAdminId,omitempty"`
}

// SupportChatMessageDoc はsupportChats/{chatId}/messagesのドキュメント。
type SupportChatMessageDoc struct {
	SenderID   string `json:"senderId,omitempty"`
	SenderRole string `json:"senderRole,omitempty"`
	Text       string `json:"text,omitempty"`
}

// SentByAdmin は管理者が送信したメッセージかどうかを返す。
func (d *SupportChatMessageDoc) SentByAdmin() bool {
	return Role(d.SenderRole) == RoleAdmin
}

// SupportMessageDoc はsupportMessagesのドキュメント。
type SupportMessageDoc struct {
	UserID  string `json:"userId,omitempty"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}
