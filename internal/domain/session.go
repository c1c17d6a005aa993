package domain

import "time"

// UserRef identifies the requester in prediction and story payloads.
type UserRef struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date,omitempty"`
}

// Prediction is the model output of one reading.
type Prediction struct {
	Action   string `json:"action"`
	Response string `json:"response"`
}

// Session is the record persisted after a prediction completes.
type Session struct {
	ID         string        `json:"id"`
	User       UserRef       `json:"user"`
	Reading    Reading       `json:"reading"`
	Insights   TarotInsights `json:"insights"`
	Prediction Prediction    `json:"prediction"`
	Feedback   *Feedback     `json:"feedback,omitempty"`
	Decode     DecodeOptions `json:"decode_options"`
	CreatedAt  time.Time     `json:"created_at"`
}
