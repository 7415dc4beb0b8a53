package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/internal/commands"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	submitted []string
	recovered []string
}

func (f *fakePipeline) Start(context.Context) error { return nil }
func (f *fakePipeline) Stop() error                 { return nil }

func (f *fakePipeline) SubmitManualInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return pipeline.ErrEmptyInput
	}
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakePipeline) FullRecovery(reason string) error {
	f.recovered = append(f.recovered, reason)
	return nil
}

func (f *fakePipeline) GetState() pipeline.PipelineState  { return pipeline.StateRunning }
func (f *fakePipeline) Status() pipeline.StatusReport     { return pipeline.StatusReport{PipelineID: "p1"} }
func (f *fakePipeline) Events(limit int) []pipeline.Event { return nil }
func (f *fakePipeline) IsHealthy() bool                   { return true }

type sent struct {
	channelID string
	content   string
	embed     *discordgo.MessageEmbed
}

type fakeSender struct {
	messages []sent
}

func (f *fakeSender) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.messages = append(f.messages, sent{channelID: channelID, content: content})
	return &discordgo.Message{}, nil
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.messages = append(f.messages, sent{channelID: channelID, embed: embed})
	return &discordgo.Message{}, nil
}

func message(authorID, content string, mentions ...*discordgo.User) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: authorID},
		Mentions:  mentions,
	}}
}

func TestMessageHandlerCommands(t *testing.T) {
	p := &fakePipeline{}
	h := NewMessageHandler(commands.New(p, nil, "owner", "!"), nil)
	sender := &fakeSender{}

	h.HandleMessage(sender, "bot", message("u1", "!ask   what is a deadlock"))
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "c1", sender.messages[0].channelID)
	assert.Contains(t, sender.messages[0].content, "queued")
	assert.Equal(t, []string{"what is a deadlock"}, p.submitted)

	h.HandleMessage(sender, "bot", message("u1", "!status"))
	require.Len(t, sender.messages, 2)
	assert.NotNil(t, sender.messages[1].embed)

	h.HandleMessage(sender, "bot", message("u1", "!play something"))
	h.HandleMessage(sender, "bot", message("u1", "what is a deadlock"))
	h.HandleMessage(sender, "bot", message("u1", "!"))
	assert.Len(t, sender.messages, 2, "unknown commands and plain chat are ignored")
}

func TestMessageHandlerIgnoresBots(t *testing.T) {
	p := &fakePipeline{}
	h := NewMessageHandler(commands.New(p, nil, "", "!"), nil)
	sender := &fakeSender{}

	h.HandleMessage(sender, "bot", message("bot", "!ask hello there"))

	other := message("u2", "!ask hello there")
	other.Author.Bot = true
	h.HandleMessage(sender, "bot", other)

	assert.Empty(t, sender.messages)
	assert.Empty(t, p.submitted)
}

func TestMessageHandlerMention(t *testing.T) {
	p := &fakePipeline{}
	h := NewMessageHandler(commands.New(p, nil, "", "!"), nil)
	sender := &fakeSender{}

	h.HandleMessage(sender, "bot", message("u1", "<@bot> explain tcp slow start", &discordgo.User{ID: "bot"}))
	h.HandleMessage(sender, "bot", message("u1", "<@!bot> what is a b-tree", &discordgo.User{ID: "bot"}))

	assert.Equal(t, []string{"explain tcp slow start", "what is a b-tree"}, p.submitted)
	assert.Len(t, sender.messages, 2)
}

type fakeResponder struct {
	responses []*discordgo.InteractionResponse
	err       error
}

func (f *fakeResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return f.err
}

func interaction(userID string, data discordgo.ApplicationCommandInteractionData) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:   discordgo.InteractionApplicationCommand,
		Member: &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:   data,
	}}
}

func TestSlashHandlerAsk(t *testing.T) {
	p := &fakePipeline{}
	h := NewSlashHandler(commands.New(p, nil, "owner", "!"), nil)
	responder := &fakeResponder{}

	h.HandleInteraction(responder, interaction("u1", discordgo.ApplicationCommandInteractionData{
		Name: "ask",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "question", Type: discordgo.ApplicationCommandOptionString, Value: "what is  a closure"},
		},
	}))

	require.Len(t, responder.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, responder.responses[0].Type)
	assert.Contains(t, responder.responses[0].Data.Content, "queued")
	assert.Equal(t, []string{"what is  a closure"}, p.submitted)
}

func TestSlashHandlerSubcommandsAndEmbeds(t *testing.T) {
	p := &fakePipeline{}
	h := NewSlashHandler(commands.New(p, nil, "owner", "!"), nil)
	responder := &fakeResponder{}

	h.HandleInteraction(responder, interaction("owner", discordgo.ApplicationCommandInteractionData{
		Name: "utility",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "events", Type: discordgo.ApplicationCommandOptionSubCommand},
		},
	}))
	require.Len(t, responder.responses, 1)
	assert.Contains(t, responder.responses[0].Data.Content, "No events")

	h.HandleInteraction(responder, interaction("owner", discordgo.ApplicationCommandInteractionData{Name: "recover"}))
	require.Len(t, responder.responses, 2)
	require.Len(t, responder.responses[1].Data.Embeds, 1)
	assert.Equal(t, []string{"requested over discord"}, p.recovered)

	h.HandleInteraction(responder, interaction("owner", discordgo.ApplicationCommandInteractionData{Name: "dance"}))
	assert.Equal(t, "❌ Unknown command.", responder.responses[2].Data.Content)
}

func TestSlashHandlerIgnoresOtherInteractions(t *testing.T) {
	h := NewSlashHandler(commands.New(&fakePipeline{}, nil, "", "!"), nil)
	responder := &fakeResponder{err: errors.New("unknown interaction")}

	ping := interaction("u1", discordgo.ApplicationCommandInteractionData{Name: "help"})
	ping.Type = discordgo.InteractionPing
	h.HandleInteraction(responder, ping)

	bot := interaction("u1", discordgo.ApplicationCommandInteractionData{Name: "help"})
	bot.Member.User.Bot = true
	h.HandleInteraction(responder, bot)
	assert.Empty(t, responder.responses)

	dm := interaction("", discordgo.ApplicationCommandInteractionData{Name: "help"})
	dm.Member = nil
	dm.User = &discordgo.User{ID: "u1"}
	h.HandleInteraction(responder, dm)
	assert.Len(t, responder.responses, 1, "response errors are logged, not fatal")
}

type fakeHider struct {
	messageID string
	hidden    int
}

func (f *fakeHider) Hide(context.Context) error {
	f.hidden++
	f.messageID = ""
	return nil
}

func (f *fakeHider) MessageID() string { return f.messageID }

func reaction(userID, messageID, emoji string) *discordgo.MessageReactionAdd {
	return &discordgo.MessageReactionAdd{MessageReaction: &discordgo.MessageReaction{
		UserID:    userID,
		MessageID: messageID,
		Emoji:     discordgo.Emoji{Name: emoji},
	}}
}

func TestReactionHidesCurrentAnswer(t *testing.T) {
	display := &fakeHider{messageID: "m1"}
	h := NewReactionHandler(display, nil)

	h.HandleReaction("bot", reaction("bot", "m1", HideEmoji))
	h.HandleReaction("bot", reaction("u1", "m1", "👍"))
	h.HandleReaction("bot", reaction("u1", "m0", HideEmoji))
	h.HandleReaction("bot", nil)
	assert.Equal(t, 0, display.hidden)

	h.HandleReaction("bot", reaction("u1", "m1", HideEmoji))
	assert.Equal(t, 1, display.hidden)

	h.HandleReaction("bot", reaction("u1", "m1", HideEmoji))
	assert.Equal(t, 1, display.hidden, "nothing left to hide")
}
