package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

type Message struct {
	Subject string
	Text    string
	HTML    string
}

var verificationHTML = template.Must(template.New("verification_html").Parse(`<html>
  <body style="font-family: Arial, sans-serif; text-align: center; background-color: #f0f2f5; padding: 30px;">
    <div style="background-color: #ffffff; border-radius: 10px; padding: 40px; display: inline-block;">
      <h2 style="color: #4A90E2;">Welcome to {{.Brand}}!</h2>
      <p>Hello, <strong>{{.Name}}</strong></p>
      <p>Your verification code is:</p>
      <h1 style="letter-spacing: 4px; color: #333;">{{.Code}}</h1>
      <p>Please enter this code to verify your account.</p>
      <hr style="margin-top: 30px; margin-bottom: 10px;">
      <p style="font-size: 12px; color: #888;">This is an automated message, please do not reply.</p>
    </div>
  </body>
</html>
`))

var verificationText = texttemplate.Must(texttemplate.New("verification_text").Parse(`Hello, {{.Name}}

Your {{.Brand}} verification code is: {{.Code}}

Please enter this code to verify your account.
`))

// Renderer builds verification messages for one brand.
type Renderer struct {
	Brand   string
	Subject string
}

func (r Renderer) Verification(name, code string) (Message, error) {
	data := struct {
		Brand string
		Name  string
		Code  string
	}{Brand: r.Brand, Name: name, Code: code}

	var html, text bytes.Buffer
	if err := verificationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	if err := verificationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{Subject: r.Subject, Text: text.String(), HTML: html.String()}, nil
}
