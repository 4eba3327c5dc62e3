package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/homefinder/apiserver/types"
)

// MessageRepository handles persistence for listing messages.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message types.Message) (types.Message, error) {
	message.CreatedAt = time.Now()

	var senderID sql.NullInt64
	if message.SenderID != nil {
		senderID = sql.NullInt64{Int64: int64(*message.SenderID), Valid: true}
	}

	const query = `
		INSERT INTO messages (body, listing_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		message.Body,
		message.ListingID,
		senderID,
		message.CreatedAt,
	).Scan(&message.ID); err != nil {
		return types.Message{}, translateError(err)
	}
	return message, nil
}

// ListByListingWithSender returns a listing's messages oldest first, each
// with the sender's public profile when the sender was logged in.
func (r *MessageRepository) ListByListingWithSender(ctx context.Context, listingID int) ([]types.MessageWithSender, error) {
	const query = `
		SELECT m.id, m.body, m.listing_id, m.user_id, m.created_at, u.name, u.email
		FROM messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.listing_id = $1
		ORDER BY m.created_at, m.id`
	rows, err := r.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.MessageWithSender
	for rows.Next() {
		var item types.MessageWithSender
		var senderID sql.NullInt64
		var senderName, senderEmail sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.Body,
			&item.ListingID,
			&senderID,
			&item.CreatedAt,
			&senderName,
			&senderEmail,
		); err != nil {
			return nil, err
		}
		if senderID.Valid {
			id := int(senderID.Int64)
			item.SenderID = &id
			item.Sender = &types.PublicUser{
				ID:    id,
				Name:  senderName.String,
				Email: senderEmail.String,
			}
		}
		messages = append(messages, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
