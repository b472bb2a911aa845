// Package models contains domain types for the document chat client.
package models

import "time"

// MessageStatus represents the delivery state of a transcript message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "Sent"
	MessageStatusDelivered MessageStatus = "Delivered"
	MessageStatusError     MessageStatus = "Error"
)

// Participant identifies one side of the conversation.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one entry in the append-only chat transcript.
type Message struct {
	ID          string        `json:"id"`
	Seq         uint64        `json:"seq"`
	SenderID    string        `json:"senderId"`
	ReceiverID  string        `json:"receiverId"`
	DisplayName string        `json:"name"`
	Timestamp   time.Time     `json:"timestamp"`
	Time        string        `json:"time"` // short label rendered at creation
	Body        string        `json:"message"`
	Status      MessageStatus `json:"status"`
	InReplyTo   string        `json:"inReplyTo,omitempty"` // question ID for responder messages
}

// IsFrom reports whether the message was authored by the given participant.
func (m Message) IsFrom(participantID string) bool {
	return m.SenderID == participantID
}
