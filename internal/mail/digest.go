// Package mail renders and delivers the daily birthday digest.
package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// Subject is the subject line of every digest.
const Subject = "Birthday Reminder"

// Entry is one contact in a digest. Age is nil when the birth year is unknown.
type Entry struct {
	Name string
	Date string
	Age  *int
}

// Digest is the mail a user receives for all of their contacts whose birthday is today.
type Digest struct {
	UserID  int64
	To      string
	Name    string
	Today   time.Time
	Entries []Entry
}

// Sender delivers digests.
type Sender interface {
	Send(ctx context.Context, d Digest) error
}

// Rendered is a digest turned into mail bodies.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type digestView struct {
	Name    string
	Today   string
	Entries []Entry
}

var htmlTemplate = htmltemplate.Must(htmltemplate.New("digest").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8" />
<title>Birthday Reminder</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background: #f6f7f9; color: #111827; }
.container { max-width: 640px; margin: 24px auto; background: #ffffff; border-radius: 12px; }
.header { padding: 20px 24px; background: #111827; color: #ffffff; }
.content { padding: 24px; }
table { width: 100%; border-collapse: collapse; margin-top: 12px; }
th, td { text-align: left; padding: 10px 12px; border-bottom: 1px solid #e5e7eb; }
.footer { padding: 16px 24px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
<div class="container">
<div class="header"><h1>Birthday Reminder</h1></div>
<div class="content">
<p>Hello {{.Name}},</p>
<p>The following contact(s) have a birthday today ({{.Today}}):</p>
<table role="table" aria-label="Birthdays">
<thead><tr><th scope="col">Name</th><th scope="col">Date</th><th scope="col">Age</th></tr></thead>
<tbody>
{{- range .Entries}}
<tr><td>{{.Name}}</td><td>{{.Date}}</td><td>{{if .Age}}{{.Age}}{{end}}</td></tr>
{{- end}}
</tbody>
</table>
<p>Have a great day!</p>
</div>
<div class="footer"><p>This is an automated reminder from Birthday Reminder.</p></div>
</div>
</body>
</html>
`))

var textTemplate = texttemplate.Must(texttemplate.New("digest").Parse(`Hello {{.Name}},

The following contact(s) have a birthday today ({{.Today}}):
{{range .Entries}}
- {{.Name}} ({{.Date}}){{if .Age}}, turning {{.Age}}{{end}}
{{- end}}

Have a great day!
`))

// Render produces subject and bodies of d.
func Render(d Digest) (Rendered, error) {
	view := digestView{Name: d.Name, Today: d.Today.Format("Jan 2, 2006"), Entries: d.Entries}
	if strings.TrimSpace(view.Name) == "" {
		view.Name = "there"
	}
	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return Rendered{}, fmt.Errorf("render html digest: %w", err)
	}
	if err := textTemplate.Execute(&text, view); err != nil {
		return Rendered{}, fmt.Errorf("render text digest: %w", err)
	}
	return Rendered{Subject: Subject, HTML: html.String(), Text: text.String()}, nil
}
