package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[Kind]string{
	KindConfirmation:   "Confirm your email",
	KindRecovery:       "Password recovery",
	KindBirthdayDigest: "Upcoming birthdays",
}

var linkPaths = map[Kind]string{
	KindConfirmation: "/api/auth/confirmed_email/",
	KindRecovery:     "/api/auth/recovered_password/",
}

// Rendered is a message ready to send.
type Rendered struct {
	To      string
	Subject string
	HTML    string
}

// Renderer executes the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("mail: parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render builds the subject and HTML body for m.
func (r *Renderer) Render(m Message) (Rendered, error) {
	if err := m.Validate(); err != nil {
		return Rendered{}, err
	}
	data := struct {
		Username  string
		Link      string
		Birthdays []Birthday
	}{
		Username:  m.Username,
		Birthdays: m.Birthdays,
	}
	if path, ok := linkPaths[m.Kind]; ok {
		data.Link = strings.TrimRight(m.BaseURL, "/") + path + m.Token
	}
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, string(m.Kind)+".html", data); err != nil {
		return Rendered{}, fmt.Errorf("mail: render %s: %w", m.Kind, err)
	}
	return Rendered{To: m.To, Subject: subjects[m.Kind], HTML: buf.String()}, nil
}
