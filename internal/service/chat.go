package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ezchat-cam/coordinator/internal/domain"
)

func (c *coordinator) Send(ctx context.Context, room, username, text, clientID string) (domain.ChatMessage, error) {
	if room == "" {
		return domain.ChatMessage{}, ErrMissingRoom
	}
	if username == "" {
		return domain.ChatMessage{}, ErrMissingUsername
	}

	// Collapse runs of whitespace and trim before validating length.
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > c.cfg.MaxMessageLen {
		return domain.ChatMessage{}, ErrMessageTooLong
	}

	// The client-supplied id, when present, lets the sender reconcile the
	// echoed message with its optimistic copy.
	id := clientID
	if id == "" {
		id = uuid.New().String()
	}

	msg := domain.ChatMessage{
		ID:       id,
		Room:     room,
		Username: username,
		Text:     text,
		Ts:       c.now(),
	}

	// Appending to the log is the only hard guarantee of Send.
	if err := c.store.AppendMessage(ctx, msg, c.cfg.ChatRetention); err != nil {
		return domain.ChatMessage{}, err
	}

	c.publish(ctx, domain.NewMessageEvent(msg))

	return msg, nil
}

func (c *coordinator) History(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	if room == "" {
		return nil, ErrMissingRoom
	}

	if limit <= 0 || limit > c.cfg.ChatRetention {
		limit = c.cfg.ChatRetention
	}

	return c.store.ListMessages(ctx, room, limit)
}
