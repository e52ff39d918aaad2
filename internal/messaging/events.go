package messaging

import (
	"fmt"
	"strings"
)

// EventMessage maps a client event to an outbound message. The recipient
// comes from data["to"].
func EventMessage(messageType string, data map[string]any) (Message, error) {
	to := strings.TrimSpace(text(data, "to"))
	if to == "" {
		return Message{}, fmt.Errorf("%w: data.to is required", ErrInvalidMessage)
	}

	var body string
	switch messageType {
	case "invoice_created":
		body = fmt.Sprintf("Invoice %s created for %s. Due %s.",
			text(data, "invoice_no"), text(data, "amount"), text(data, "due_date"))
	case "payment_reminder":
		body = fmt.Sprintf("Reminder: please pay %s.", text(data, "amount"))
	default:
		body = text(data, "message")
		if body == "" {
			body = "Notification"
		}
	}
	return Message{To: to, Text: body}, nil
}

// TemplateFallback is the plain text sent alongside a template: the
// parameters joined by spaces, or a single space when there are none.
func TemplateFallback(parameters []any) string {
	if len(parameters) == 0 {
		return " "
	}
	parts := make([]string, len(parameters))
	for i, p := range parameters {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, " ")
}

func text(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
