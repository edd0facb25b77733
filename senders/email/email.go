package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/fiffu/repowatch/lib/models"
)

var (
	//go:embed notification.html
	notificationHTML     string
	notificationTemplate = template.Must(template.New("notification.html").Parse(notificationHTML))

	//go:embed verify.html
	verifyHTML     string
	verifyTemplate = template.Must(template.New("verify.html").Parse(verifyHTML))
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

type NotificationEmailFormat struct {
	Notification *models.Notification
}

func (ef *NotificationEmailFormat) Subject() string {
	return fmt.Sprintf("repowatch: %s", ef.Notification.Title)
}

// Lines splits the plain-text body so the template can render line breaks.
func (ef *NotificationEmailFormat) Lines() []string {
	return strings.Split(ef.Notification.Body, "\n")
}

func (ef *NotificationEmailFormat) Body() string {
	return mustFillTemplate(notificationTemplate, ef)
}

type VerificationEmailFormat struct {
	VerifyURL string
}

func (ef *VerificationEmailFormat) Subject() string {
	return "repowatch: Email verification required"
}

func (ef *VerificationEmailFormat) Body() string {
	return mustFillTemplate(verifyTemplate, ef)
}
