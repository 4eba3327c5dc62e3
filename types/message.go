package types

import "time"

// Message is a note left by a visitor on a published listing.
// Messages are append-only.
type Message struct {
	ID        int       `json:"id" db:"id"`
	Body      string    `json:"body" db:"body"`
	ListingID int       `json:"listing_id" db:"listing_id"`
	SenderID  *int      `json:"sender_id,omitempty" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MessageWithSender pairs a message with the sender's public profile.
// Sender is nil for anonymous messages.
type MessageWithSender struct {
	Message
	Sender *PublicUser `json:"sender,omitempty"`
}
