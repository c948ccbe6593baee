package mail

import (
	"bytes"
	_ "embed"
	"html/template"
)

// EscalationMailParams feeds the escalation notification template.
type EscalationMailParams struct {
	TicketID     string
	RuleName     string
	Status       string
	Priority     string
	Category     string
	Assignee     string
	CreatedAt    string
	ElapsedTime  string // human-readable, e.g. "3 hours 10 minutes"
	Summary      string // plain-text summary composed by the action executor
	BrandingName string
}

var (
	escalationTemplate = template.New("escalation")

	//go:embed templates/escalation.html
	escalationTemplateRaw string
)

func init() {
	if _, err := escalationTemplate.Parse(escalationTemplateRaw); err != nil {
		panic(err)
	}
}

func render(t *template.Template, p any) (string, error) {
	b := bytes.Buffer{}
	err := t.Execute(&b, p)
	return b.String(), err
}

// RenderEscalation renders the HTML body of an escalation notification.
func RenderEscalation(p EscalationMailParams) (string, error) {
	return render(escalationTemplate, p)
}
