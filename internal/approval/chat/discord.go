package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/radiuskernel/radius/internal/approval"
	"github.com/radiuskernel/radius/internal/policy"
)

// discordBotClient adapts a *discordgo.Session to botClient. Unlike
// Telegram's pull-based getUpdates, Discord delivers interactions over its
// gateway websocket, so the handler registered in NewDiscordConnector
// funnels INTERACTION_CREATE button presses into a buffered channel that
// Poll drains — keeping the same send-then-poll shape for the resolver.
type discordBotClient struct {
	session *discordgo.Session

	mu     sync.Mutex
	events []CallbackEvent
}

func newDiscordBotClient(token string) (*discordBotClient, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("chat: discord session init: %w", err)
	}
	c := &discordBotClient{session: session}
	session.AddHandler(c.onInteraction)
	session.Identify.Intents = discordgo.IntentsGuildMessages
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("chat: discord gateway open: %w", err)
	}
	return c, nil
}

func (c *discordBotClient) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	verdict, id, ok := parseCallbackData(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	approverID := ""
	if i.Member != nil && i.Member.User != nil {
		approverID = i.Member.User.ID
	} else if i.User != nil {
		approverID = i.User.ID
	}
	c.mu.Lock()
	c.events = append(c.events, CallbackEvent{
		CallbackID: i.Interaction.ID,
		ChatID:     i.ChannelID,
		ApproverID: approverID,
		ApprovalID: id,
		Approve:    verdict == "approve",
	})
	c.mu.Unlock()

	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{Content: "Recorded."},
	})
}

func (c *discordBotClient) SendPrompt(ctx context.Context, channelID, text, approvalID string) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: text,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: "ag:approve:" + approvalID},
					discordgo.Button{Label: "Deny", Style: discordgo.DangerButton, CustomID: "ag:deny:" + approvalID},
				},
			},
		},
	})
	return err
}

func (c *discordBotClient) Poll(ctx context.Context, sinceOffset int64) ([]CallbackEvent, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.events
	c.events = nil
	return events, sinceOffset, nil
}

func (c *discordBotClient) Ack(ctx context.Context, callbackID string) error { return nil }

func (c *discordBotClient) Close() error { return c.session.Close() }

// DiscordConnector resolves challenges by posting a button prompt to
// configured channels and watching the gateway for the press.
type DiscordConnector struct {
	client      *discordBotClient
	channelIDs  []string
	approverIDs map[string]bool
	pollEvery   time.Duration
}

func NewDiscordConnector(token string, channelIDs, approverIDs []string, pollEvery time.Duration) (*DiscordConnector, error) {
	client, err := newDiscordBotClient(token)
	if err != nil {
		return nil, err
	}
	if pollEvery <= 0 {
		pollEvery = 500 * time.Millisecond
	}
	approvers := make(map[string]bool, len(approverIDs))
	for _, id := range approverIDs {
		approvers[strings.TrimSpace(id)] = true
	}
	return &DiscordConnector{client: client, channelIDs: channelIDs, approverIDs: approvers, pollEvery: pollEvery}, nil
}

func (c *DiscordConnector) Resolve(ctx context.Context, approvalID, prompt string, deadline time.Time, event *policy.Event) approval.Outcome {
	return pollForVerdict(ctx, c.client, c.channelIDs, c.approverIDs, approvalID, prompt, deadline, c.pollEvery)
}

func (c *DiscordConnector) Close() error { return c.client.Close() }
