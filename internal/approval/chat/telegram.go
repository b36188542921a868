package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/radiuskernel/radius/internal/approval"
	"github.com/radiuskernel/radius/internal/policy"
)

// telegramBotClient adapts *bot.Bot to botClient.
type telegramBotClient struct {
	bot     *tgbot.Bot
	chatIDs []int64
}

func newTelegramBotClient(token string, chatIDs []string) (*telegramBotClient, error) {
	b, err := tgbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("chat: telegram client init: %w", err)
	}
	ids := make([]int64, 0, len(chatIDs))
	for _, raw := range chatIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return &telegramBotClient{bot: b, chatIDs: ids}, nil
}

func (c *telegramBotClient) SendPrompt(ctx context.Context, chatID, text, approvalID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("chat: invalid telegram chat id %q: %w", chatID, err)
	}
	markup := models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Approve", CallbackData: "ag:approve:" + approvalID},
				{Text: "Deny", CallbackData: "ag:deny:" + approvalID},
			},
		},
	}
	_, err = c.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      id,
		Text:        text,
		ReplyMarkup: markup,
	})
	return err
}

func (c *telegramBotClient) Poll(ctx context.Context, sinceOffset int64) ([]CallbackEvent, int64, error) {
	updates, err := c.bot.GetUpdates(ctx, &tgbot.GetUpdatesParams{
		Offset:         sinceOffset,
		Timeout:        5,
		AllowedUpdates: []string{"callback_query"},
	})
	if err != nil {
		return nil, sinceOffset, err
	}

	offset := sinceOffset
	var events []CallbackEvent
	for _, u := range updates {
		if u.ID+1 > offset {
			offset = u.ID + 1
		}
		if u.CallbackQuery == nil || u.CallbackQuery.Message.Message == nil {
			continue
		}
		verdict, id, ok := parseCallbackData(u.CallbackQuery.Data)
		if !ok {
			continue
		}
		events = append(events, CallbackEvent{
			CallbackID: u.CallbackQuery.ID,
			ChatID:     strconv.FormatInt(u.CallbackQuery.Message.Message.Chat.ID, 10),
			ApproverID: strconv.FormatInt(u.CallbackQuery.From.ID, 10),
			ApprovalID: id,
			Approve:    verdict == "approve",
		})
	}
	return events, offset, nil
}

func (c *telegramBotClient) Ack(ctx context.Context, callbackID string) error {
	_, err := c.bot.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{CallbackQueryID: callbackID})
	return err
}

func parseCallbackData(data string) (verdict, approvalID string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != "ag" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// TelegramConnector resolves challenges through a Telegram bot using the
// generic send-then-poll protocol.
type TelegramConnector struct {
	client      botClient
	chatIDs     []string
	approverIDs map[string]bool
	pollEvery   time.Duration
}

func NewTelegramConnector(token string, chatIDs, approverIDs []string, pollEvery time.Duration) (*TelegramConnector, error) {
	client, err := newTelegramBotClient(token, chatIDs)
	if err != nil {
		return nil, err
	}
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}
	approvers := make(map[string]bool, len(approverIDs))
	for _, id := range approverIDs {
		approvers[strings.TrimSpace(id)] = true
	}
	return &TelegramConnector{client: client, chatIDs: chatIDs, approverIDs: approvers, pollEvery: pollEvery}, nil
}

func (c *TelegramConnector) Resolve(ctx context.Context, approvalID, prompt string, deadline time.Time, event *policy.Event) approval.Outcome {
	return pollForVerdict(ctx, c.client, c.chatIDs, c.approverIDs, approvalID, prompt, deadline, c.pollEvery)
}

// pollForVerdict implements the shared send-prompt/poll-for-callback loop
// used by every chat transport. A callback is only honored when its
// originator is in approvers AND its chat id is in chatIDs; empty sets
// reject every callback rather than allowing them through.
func pollForVerdict(ctx context.Context, client botClient, chatIDs []string, approvers map[string]bool, approvalID, prompt string, deadline time.Time, pollEvery time.Duration) approval.Outcome {
	for _, chatID := range chatIDs {
		if err := client.SendPrompt(ctx, chatID, prompt, approvalID); err != nil {
			return approval.Outcome{Status: approval.StatusError, Reason: fmt.Sprintf("chat: send prompt failed: %s", err)}
		}
	}
	if len(chatIDs) == 0 {
		return approval.Outcome{Status: approval.StatusError, Reason: "chat: no chat ids configured"}
	}

	allowedChats := make(map[string]bool, len(chatIDs))
	for _, id := range chatIDs {
		allowedChats[strings.TrimSpace(id)] = true
	}

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return approval.Outcome{Status: approval.StatusTimeout, Reason: "chat: approval deadline exceeded"}
		case <-ticker.C:
			events, next, err := client.Poll(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return approval.Outcome{Status: approval.StatusTimeout, Reason: "chat: approval deadline exceeded"}
				}
				return approval.Outcome{Status: approval.StatusError, Reason: fmt.Sprintf("chat: poll failed: %s", err)}
			}
			offset = next
			for _, ev := range events {
				if ev.ApprovalID != approvalID {
					continue
				}
				if !approvers[ev.ApproverID] || !allowedChats[ev.ChatID] {
					continue
				}
				_ = client.Ack(ctx, ev.CallbackID)
				if ev.Approve {
					return approval.Outcome{Status: approval.StatusApproved, Reason: "approved via chat"}
				}
				return approval.Outcome{Status: approval.StatusDenied, Reason: "denied via chat"}
			}
		}
	}
}
