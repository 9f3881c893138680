package gateway

import (
	"context"
	"time"
)

// Adapter is the interface every chat platform adapter implements.
type Adapter interface {
	// Platform returns the platform identifier ("slack", "discord").
	Platform() string

	// Connect establishes the platform connection and starts listening.
	Connect(ctx context.Context) error

	// Send posts a message to a platform channel.
	Send(ctx context.Context, msg *OutboundMessage) error

	// OnMessage registers the handler for inbound messages.
	OnMessage(handler MessageHandler)

	// Close shuts down the adapter.
	Close() error
}

// MessageHandler processes an inbound platform message.
type MessageHandler func(msg *InboundMessage)

// InboundMessage is a user message received from a chat platform.
type InboundMessage struct {
	Platform  string    `json:"platform"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// OutboundMessage is an answer sent back to a platform channel.
type OutboundMessage struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
}
