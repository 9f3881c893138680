package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/agent"
	"github.com/nidhogg/secgraph/internal/provider"
)

// ChatRunner executes one conversational turn.
type ChatRunner interface {
	RunChat(ctx context.Context, history []provider.Message) (*agent.Result, error)
}

// SessionStore persists conversation turns per platform channel.
type SessionStore interface {
	FindOrCreateSession(ctx context.Context, platform, channelID string) (string, error)
	AppendMessage(ctx context.Context, sessionID string, msg provider.Message) error
	AppendReasoning(ctx context.Context, sessionID string, trace []string) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]provider.Message, error)
}

const (
	historyLimit   = 20
	dispatchWindow = 2 * time.Minute
)

// Dispatcher routes inbound platform messages through the agent and sends
// the answer back on the originating channel.
type Dispatcher struct {
	gateway  *Gateway
	runner   ChatRunner
	sessions SessionStore
	logger   *zap.Logger
}

// NewDispatcher wires a dispatcher to the gateway. sessions may be nil, in
// which case every turn runs without prior history.
func NewDispatcher(gw *Gateway, runner ChatRunner, sessions SessionStore, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{gateway: gw, runner: runner, sessions: sessions, logger: logger}
	gw.SetHandler(d.Handle)
	return d
}

// Handle processes one inbound message end to end. It is safe to call from
// adapter callbacks; each turn gets its own deadline.
func (d *Dispatcher) Handle(msg *InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchWindow)
	defer cancel()

	history, sessionID := d.loadHistory(ctx, msg)
	history = append(history, provider.Message{Role: "user", Content: msg.Content})

	result, err := d.runner.RunChat(ctx, history)
	if err != nil {
		d.logger.Error("chat turn failed",
			zap.String("platform", msg.Platform),
			zap.String("channel", msg.ChannelID),
			zap.Error(err))
		d.reply(ctx, msg, "Sorry, I could not process that request.")
		return
	}

	d.persistTurn(ctx, sessionID, msg.Content, result)
	d.reply(ctx, msg, result.Answer)
}

func (d *Dispatcher) loadHistory(ctx context.Context, msg *InboundMessage) ([]provider.Message, string) {
	if d.sessions == nil {
		return nil, ""
	}
	sessionID, err := d.sessions.FindOrCreateSession(ctx, msg.Platform, msg.ChannelID)
	if err != nil {
		d.logger.Warn("session lookup failed", zap.Error(err))
		return nil, ""
	}
	history, err := d.sessions.GetMessages(ctx, sessionID, historyLimit)
	if err != nil {
		d.logger.Warn("history load failed", zap.Error(err))
		return nil, sessionID
	}
	return history, sessionID
}

func (d *Dispatcher) persistTurn(ctx context.Context, sessionID, question string, result *agent.Result) {
	if d.sessions == nil || sessionID == "" {
		return
	}
	if err := d.sessions.AppendMessage(ctx, sessionID, provider.Message{Role: "user", Content: question}); err != nil {
		d.logger.Warn("persist user message failed", zap.Error(err))
	}
	if err := d.sessions.AppendMessage(ctx, sessionID, provider.Message{Role: "assistant", Content: result.Answer}); err != nil {
		d.logger.Warn("persist answer failed", zap.Error(err))
	}
	if err := d.sessions.AppendReasoning(ctx, sessionID, result.Reasoning); err != nil {
		d.logger.Warn("persist reasoning failed", zap.Error(err))
	}
}

func (d *Dispatcher) reply(ctx context.Context, msg *InboundMessage, content string) {
	out := &OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   content,
		ReplyTo:   msg.ReplyTo,
	}
	if err := d.gateway.Send(ctx, out); err != nil {
		d.logger.Error("reply send failed",
			zap.String("platform", msg.Platform),
			zap.String("channel", msg.ChannelID),
			zap.Error(err))
	}
}
