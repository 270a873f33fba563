package domain

import "time"

// ChatMessage is the provider-agnostic chat message shape sent to the
// reasoning backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserReply is the plain reply handed back to a transport.
type UserReply struct {
	Message  string    `json:"message"`
	Vehicles []Vehicle `json:"vehicles"`
	Success  bool      `json:"success"`
}

// TurnRecord is a completed turn as written to the archive.
type TurnRecord struct {
	SessionID string
	At        time.Time
	Question  string
	Answer    string
	Action    string
	Success   bool
	Vehicles  int
}
