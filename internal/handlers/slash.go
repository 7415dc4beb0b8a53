package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/internal/commands"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// InteractionResponder is the part of the Discord session that answers interactions
type InteractionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// SlashHandler runs slash commands
type SlashHandler struct {
	commands *commands.Commands
	logger   pipeline.Logger
}

// NewSlashHandler creates the handler
func NewSlashHandler(cmds *commands.Commands, logger pipeline.Logger) *SlashHandler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &SlashHandler{commands: cmds, logger: logger.With(pipeline.String("component", "slash_handler"))}
}

// Handle is registered with the Discord session
func (h *SlashHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if s == nil || i == nil || i.Interaction == nil {
		return
	}
	h.HandleInteraction(s, i)
}

// HandleInteraction answers one application command interaction
func (h *SlashHandler) HandleInteraction(r InteractionResponder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		h.logger.Debug("Ignoring interaction", pipeline.Int("type", int(i.Type)))
		return
	}

	user := interactionUser(i)
	// Ignore interactions from bots
	if user == nil || user.Bot {
		return
	}

	data := i.ApplicationCommandData()
	reply, ok := h.commands.Run(data.Name, optionArgs(data.Options), user.ID)
	if !ok {
		reply = commands.Reply{Content: "❌ Unknown command."}
	}

	responseData := &discordgo.InteractionResponseData{Content: reply.Content}
	if reply.Embed != nil {
		responseData.Embeds = []*discordgo.MessageEmbed{reply.Embed}
	}

	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData,
	})
	if err != nil {
		h.logger.Warn("Error sending interaction response",
			pipeline.String("command", data.Name),
			pipeline.Error(err),
		)
	}
}

// interactionUser returns the invoking user for guild and DM interactions
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// optionArgs flattens options into command arguments. Subcommands become
// their name followed by their own options.
func optionArgs(options []*discordgo.ApplicationCommandInteractionDataOption) []string {
	var args []string
	for _, opt := range options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommand:
			args = append(args, opt.Name)
			args = append(args, optionArgs(opt.Options)...)
		case discordgo.ApplicationCommandOptionString:
			args = append(args, opt.StringValue())
		}
	}
	return args
}
