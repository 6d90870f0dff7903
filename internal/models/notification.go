package models

// Notification records one alert delivery attempt.
type Notification struct {
	ID      string `json:"id"`
	Metric  Metric `json:"metric"`
	Channel string `json:"channel"` // "sms", "email"
	Status  string `json:"status"`  // "sent", "failed", "suppressed"
	Message string `json:"message"`
	SentAt  string `json:"sentAt"`
}
