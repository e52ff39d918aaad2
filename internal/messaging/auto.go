package messaging

import "context"

// AutoProvider routes template messages to Meta and everything else to
// Twilio.
type AutoProvider struct {
	text     Provider
	template Provider
}

func NewAutoProvider(text, template Provider) *AutoProvider {
	return &AutoProvider{text: text, template: template}
}

func (p *AutoProvider) Name() string { return "auto" }

func (p *AutoProvider) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if msg.TemplateID != "" {
		return p.template.Send(ctx, msg)
	}
	return p.text.Send(ctx, msg)
}
