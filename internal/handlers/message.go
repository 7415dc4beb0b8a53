package handlers

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/internal/commands"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// MessageSender is the part of the Discord session replies go through
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// MessageHandler runs prefixed text commands. Mentioning the bot asks the
// rest of the message as a question.
type MessageHandler struct {
	commands *commands.Commands
	logger   pipeline.Logger
}

// NewMessageHandler creates the handler
func NewMessageHandler(cmds *commands.Commands, logger pipeline.Logger) *MessageHandler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &MessageHandler{commands: cmds, logger: logger.With(pipeline.String("component", "message_handler"))}
}

// Handle is registered with the Discord session
func (h *MessageHandler) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s == nil || s.State == nil || s.State.User == nil || m == nil || m.Message == nil {
		return
	}
	h.HandleMessage(s, s.State.User.ID, m)
}

// HandleMessage processes one message on behalf of the bot user botID
func (h *MessageHandler) HandleMessage(sender MessageSender, botID string, m *discordgo.MessageCreate) {
	// Ignore all messages created by bots, including this one
	if m.Author == nil || m.Author.ID == botID || m.Author.Bot {
		return
	}

	for _, mention := range m.Mentions {
		if mention.ID == botID {
			h.send(sender, m.ChannelID, h.commands.Ask(stripMention(m.Content, botID)))
			return
		}
	}

	prefix := h.commands.Prefix()
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}

	args := strings.Fields(strings.TrimPrefix(m.Content, prefix))
	if len(args) == 0 {
		return
	}

	reply, ok := h.commands.Run(args[0], args[1:], m.Author.ID)
	if !ok {
		return
	}
	h.send(sender, m.ChannelID, reply)
}

func (h *MessageHandler) send(sender MessageSender, channelID string, reply commands.Reply) {
	var err error
	if reply.Embed != nil {
		_, err = sender.ChannelMessageSendEmbed(channelID, reply.Embed)
	} else if reply.Content != "" {
		_, err = sender.ChannelMessageSend(channelID, reply.Content)
	}
	if err != nil {
		h.logger.Warn("Failed to send reply", pipeline.String("channel_id", channelID), pipeline.Error(err))
	}
}

func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}
