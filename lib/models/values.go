package models

// Notification is a rendered, ready-to-send message for one subscriber.
type Notification struct {
	ID           string `json:"id"`
	SubscriberID uint   `json:"subscriber_id"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	Service      string `json:"service"`
	Type         string `json:"type"`
	URL          string `json:"url,omitempty"`
}
