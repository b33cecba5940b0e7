package notification

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// previewLength はメッセージプレビューの最大文字数（rune単位）。
const previewLength = 50

// FormatBudget は予算を "$12,500.00" の形式に整形する。未設定の場合は空文字列を返す。
func FormatBudget(budget *float64) string {
	if budget == nil {
		return ""
	}
	v := *budget
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", v)
}

// Preview はテキストを50文字に切り詰め、切り詰めた場合は末尾に "..." を付ける。
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

// withBudget はメッセージに予算の文を付け加える。予算が未設定なら何もしない。
func withBudget(message string, budget *float64) string {
	if formatted := FormatBudget(budget); formatted != "" {
		return fmt.Sprintf("%s Budget: %s.", message, formatted)
	}
	return message
}

// quoted はタイトルがあれば引用符付きで返し、なければfallbackを返す。
func quoted(title, fallback string) string {
	if title = strings.TrimSpace(title); title != "" {
		return fmt.Sprintf("%q", title)
	}
	return fallback
}
