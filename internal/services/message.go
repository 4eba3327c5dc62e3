package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/homefinder/apiserver/internal/policy"
	"github.com/homefinder/apiserver/internal/store"
	"github.com/homefinder/apiserver/types"
)

// MessageRepository defines persistence operations for listing messages.
type MessageRepository interface {
	Create(ctx context.Context, message types.Message) (types.Message, error)
	ListByListingWithSender(ctx context.Context, listingID int) ([]types.MessageWithSender, error)
}

// MessageService appends messages to published listings and shows them to
// the listing owner.
type MessageService struct {
	listings ListingReader
	messages MessageRepository
	logger   *slog.Logger
}

func NewMessageService(listings ListingReader, messages MessageRepository, logger *slog.Logger) *MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageService{listings: listings, messages: messages, logger: logger}
}

// Send leaves a message on a published listing. Anonymous visitors may
// write; an authenticated actor is recorded as the sender.
func (s *MessageService) Send(ctx context.Context, actor types.Actor, listingID int, input MessageInput) (types.Message, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, err
	}
	if !listing.Published {
		return types.Message{}, ErrNotFound
	}

	input.Body = strings.TrimSpace(input.Body)
	if violations := validateStruct(input, messageMessages); len(violations) > 0 {
		return types.Message{}, &ValidationError{Fields: violations}
	}

	message := types.Message{Body: input.Body, ListingID: listing.ID}
	if actor.Authenticated() {
		sender := actor.UserID
		message.SenderID = &sender
	}

	created, err := s.messages.Create(ctx, message)
	if err != nil {
		var ref *store.ReferenceError
		if errors.As(err, &ref) && ref.Column == "listing_id" {
			return types.Message{}, ErrNotFound
		}
		s.logger.Error("create message failed", "listing_id", listingID, "err", err)
		return types.Message{}, fmt.Errorf("%w: create message: %w", ErrStorage, err)
	}
	return created, nil
}

// List returns the listing's messages oldest first. Only the owner may read them.
func (s *MessageService) List(ctx context.Context, actor types.Actor, listingID int) ([]types.MessageWithSender, error) {
	if _, err := authorizeListing(ctx, s.listings, s.logger, actor, listingID, policy.OpViewMessages); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByListingWithSender(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []types.MessageWithSender{}
	}
	return messages, nil
}
