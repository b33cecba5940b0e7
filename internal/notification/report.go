package notification

import (
	"fmt"
	"strings"

	"github.com/nao1215/estatehub/pkg/telemetry"
)

// Step は受信者解決1回分の記録。
type Step struct {
	// Branch は解決の分岐名。
	Branch string
	// Recipients は解決できた受信者数。
	Recipients int
	// Err は解決に失敗した理由。
	Err error
}

// Report はハンドラー1回分の処理結果。
// ハンドラーはエラーを返さず、すべての結果をReportに記録する。
type Report struct {
	// Handler はハンドラー名。
	Handler string
	// DocumentPath はトリガーとなったドキュメントのパス。
	DocumentPath string
	// Steps は受信者解決の記録。
	Steps []Step
	// Results は通知書き込みの結果。
	Results []WriteResult
	// SkipReason は処理を行わなかった理由。
	SkipReason string
	// Err はハンドラー自体の失敗（スナップショットのデコード失敗など）。
	Err error
}

// resolve は解決結果をStepとして記録し、受信者IDを返す。
func (r *Report) resolve(res Resolution) []string {
	r.Steps = append(r.Steps, Step{Branch: res.Branch, Recipients: len(res.UserIDs), Err: res.Err})
	return res.UserIDs
}

// skip は処理しなかった理由を記録する。
func (r *Report) skip(format string, args ...any) Report {
	r.SkipReason = fmt.Sprintf(format, args...)
	return *r
}

// fail はハンドラー自体の失敗を記録する。
func (r *Report) fail(err error) Report {
	r.Err = err
	return *r
}

// Written は書き込みに成功した通知数を返す。
func (r Report) Written() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed は書き込みに失敗した通知数を返す。
func (r Report) Failed() int {
	return len(r.Results) - r.Written()
}

// Outcome はメトリクスのラベルに使う結果の分類を返す。
func (r Report) Outcome() string {
	switch {
	case r.Err != nil:
		return telemetry.OutcomeFailed
	case r.SkipReason != "":
		return telemetry.OutcomeSkipped
	case r.Failed() > 0:
		return "partial"
	default:
		return telemetry.OutcomeOK
	}
}

// String はログ出力用の1行表現を返す。
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s outcome=%s written=%d failed=%d", r.Handler, r.DocumentPath, r.Outcome(), r.Written(), r.Failed())
	for _, s := range r.Steps {
		fmt.Fprintf(&b, " [%s:%d", s.Branch, s.Recipients)
		if s.Err != nil {
			fmt.Fprintf(&b, " err=%v", s.Err)
		}
		b.WriteString("]")
	}
	if r.SkipReason != "" {
		fmt.Fprintf(&b, " skip=%q", r.SkipReason)
	}
	if r.Err != nil {
		fmt.Fprintf(&b, " err=%v", r.Err)
	}
	return b.String()
}
