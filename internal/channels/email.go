package channels

import (
	"context"

	"github.com/google/uuid"

	"notifyhub/internal/apperr"
	"notifyhub/internal/email"
	"notifyhub/internal/model"
	"notifyhub/internal/templatestore"
)

// EmailAdapter delivers DispatchRequests over SMTP. The Dispatcher has
// already resolved req.Subject/req.Content against the active template by
// the time Send is called; the one thing left for this adapter to do is
// check whether that template also carries an HTMLTemplate body, and if so
// render it through html/template for a richer message part.
type EmailAdapter struct {
	sender    *email.Sender
	templates *templatestore.Store
}

// NewEmailAdapter builds an EmailAdapter.
func NewEmailAdapter(sender *email.Sender, templates *templatestore.Store) *EmailAdapter {
	return &EmailAdapter{sender: sender, templates: templates}
}

func (a *EmailAdapter) Channel() model.Channel { return model.ChannelEmail }

// Send delivers req's already-rendered subject/content over SMTP.
func (a *EmailAdapter) Send(ctx context.Context, req model.DispatchRequest) (string, bool, error) {
	address := req.DeliveryAddress()
	if !email.ValidAddress(address) {
		return "", false, apperr.New(apperr.KindValidation, "invalid email address "+address)
	}

	htmlBody := ""
	if req.TemplateName != "" && a.templates != nil {
		if tmpl, err := a.templates.GetByName(ctx, req.TemplateName); err == nil && tmpl.HTMLTemplate != "" {
			rendered, err := templatestore.RenderHTML(req.TemplateName, tmpl.HTMLTemplate, req.TemplateVariables)
			if err != nil {
				return "", false, err
			}
			htmlBody = rendered
		}
	}

	if err := a.sender.Send(email.Message{To: address, Subject: req.Subject, HTML: htmlBody, Text: req.Content}); err != nil {
		return "", false, err
	}

	return uuid.NewString(), false, nil
}
