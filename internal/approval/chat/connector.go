// Package chat implements the chat-channel approval protocol: send an
// inline approve/deny prompt to a configured chat, poll for the human's
// response, and stop polling at the caller's deadline. Telegram and
// Discord are thin transports over one shared callback-data scheme,
// "ag:<verdict>:<approvalID>".
package chat

import "context"

// botClient is the minimal surface chat connectors need from an SDK
// client, kept small so tests can substitute a scripted fake for the real
// Telegram or Discord session.
type botClient interface {
	SendPrompt(ctx context.Context, chatID, text, approvalID string) error
	Poll(ctx context.Context, sinceOffset int64) ([]CallbackEvent, int64, error)
	Ack(ctx context.Context, callbackID string) error
}

// CallbackEvent is one inline-button press observed by Poll.
type CallbackEvent struct {
	CallbackID string
	ChatID     string
	ApproverID string
	ApprovalID string
	Approve    bool // true = "ag:approve:<id>", false = "ag:deny:<id>"
}
