package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// CommandRegistrar is the part of the Discord session that manages
// application commands
type CommandRegistrar interface {
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// SlashCommands returns the application command definitions
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ask",
			Description: "Type an interview question",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "question",
					Description: "The question to answer",
					Required:    true,
				},
			},
		},
		{
			Name:        "status",
			Description: "Show pipeline state and component health",
		},
		{
			Name:        "recover",
			Description: "Reset every component and restart the pipeline (Bot Owner Only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Why the recovery is needed",
					Required:    false,
				},
			},
		},
		{
			Name:        "utility",
			Description: "Maintenance commands (Bot Owner Only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "cron",
					Description: "Show the status report schedule",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "events",
					Description: "Show the latest pipeline events",
				},
			},
		},
		{
			Name:        "about",
			Description: "Show bot information",
		},
		{
			Name:        "help",
			Description: "Show help information",
		},
	}
}

// RegisterSlashCommands registers the slash commands, globally when guildID is empty
func RegisterSlashCommands(s CommandRegistrar, appID, guildID string, logger pipeline.Logger) error {
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	logger.Info("Registering slash commands", pipeline.String("guild_id", guildID))

	for _, cmd := range SlashCommands() {
		if _, err := s.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			logger.Error("Error creating command", pipeline.String("command", cmd.Name), pipeline.Error(err))
			return err
		}
		logger.Debug("Registered command", pipeline.String("command", cmd.Name))
	}

	logger.Info("All slash commands registered successfully")
	return nil
}

// DeleteAllSlashCommands deletes every registered command
func DeleteAllSlashCommands(s CommandRegistrar, appID, guildID string, logger pipeline.Logger) error {
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	commands, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		logger.Error("Error fetching commands", pipeline.Error(err))
		return err
	}

	for _, cmd := range commands {
		if err := s.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
			logger.Error("Error deleting command", pipeline.String("command", cmd.Name), pipeline.Error(err))
			return err
		}
		logger.Debug("Deleted command", pipeline.String("command", cmd.Name))
	}

	logger.Info("All slash commands deleted successfully")
	return nil
}

// DeleteSlashCommand deletes one command by name. A missing command is not an error.
func DeleteSlashCommand(s CommandRegistrar, appID, guildID, name string, logger pipeline.Logger) error {
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	commands, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		logger.Error("Error fetching commands", pipeline.Error(err))
		return err
	}

	for _, cmd := range commands {
		if cmd.Name == name {
			if err := s.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
				logger.Error("Error deleting command", pipeline.String("command", cmd.Name), pipeline.Error(err))
				return err
			}
			logger.Info("Deleted command", pipeline.String("command", cmd.Name))
			return nil
		}
	}

	logger.Warn("Command not found", pipeline.String("command", name))
	return nil
}
