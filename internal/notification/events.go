package notification

import "fmt"

// EventMessage maps an application event to notification text.
func EventMessage(eventType string, data map[string]any) (title, body string) {
	switch eventType {
	case "invoice_created":
		title = "New Invoice Created"
		body = text(data, "message")
		if body == "" {
			body = fmt.Sprintf("Invoice %s created for %s", text(data, "invoice_no"), text(data, "amount"))
		}
	case "payment_received":
		title = "Payment Received"
		body = text(data, "message")
		if body == "" {
			body = fmt.Sprintf("Payment of %s received. Thank you!", text(data, "amount"))
		}
	default:
		title = text(data, "title")
		if title == "" {
			title = "Notification"
		}
		body = text(data, "message")
		if body == "" {
			body = "You have a new notification"
		}
	}
	return title, body
}

// text renders data[key] for display; missing keys render empty.
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
