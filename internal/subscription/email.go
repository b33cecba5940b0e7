package subscription

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/nao1215/estatehub/internal/delivery"
)

// confirmationSubject は確認メールの件名。
const confirmationSubject = "Welcome to the EstateHub newsletter"

var confirmationHTML = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #1f2937;">
    <h1 style="font-size: 20px;">Thanks for subscribing!</h1>
    <p>You will now receive EstateHub updates at <strong>{{.Email}}</strong>:
      new listings, construction and renovation tips, and marketplace news.</p>
    {{- if .SiteURL}}
    <p><a href="{{.SiteURL}}">Visit EstateHub</a></p>
    {{- end}}
    <p style="font-size: 12px; color: #6b7280;">If you did not request this, you can ignore this email.</p>
  </body>
</html>
`))

var confirmationText = texttemplate.Must(texttemplate.New("text").Parse(`Thanks for subscribing!

You will now receive EstateHub updates at {{.Email}}: new listings, construction and renovation tips, and marketplace news.
{{- if .SiteURL}}

Visit EstateHub: {{.SiteURL}}
{{- end}}

If you did not request this, you can ignore this email.
`))

// confirmationData は確認メールのテンプレートに渡す値。
type confirmationData struct {
	Email   string
	SiteURL string
}

// ConfirmationMessage は購読確認メールを組み立てる。
func ConfirmationMessage(email, siteURL string) (delivery.Message, error) {
	data := confirmationData{Email: email, SiteURL: siteURL}

	var html, text bytes.Buffer
	if err := confirmationHTML.Execute(&html, data); err != nil {
		return delivery.Message{}, fmt.Errorf("HTML本文の生成に失敗: %w", err)
	}
	if err := confirmationText.Execute(&text, data); err != nil {
		return delivery.Message{}, fmt.Errorf("テキスト本文の生成に失敗: %w", err)
	}
	return delivery.Message{
		To:      email,
		Subject: confirmationSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
