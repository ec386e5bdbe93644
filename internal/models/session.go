package models

// Session groups the ordered messages exchanged under one client-supplied id.
type Session struct {
	ID       string    `json:"session_id"`
	Messages []Message `json:"messages"`
}
