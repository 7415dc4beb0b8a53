package main

import (
	"flag"
	"log"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/internal/commands"
	"github.com/latoulicious/Sasayaki/internal/config"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	action := flag.String("action", "", "Action to perform: register, delete-all, delete-specific, check")
	commandName := flag.String("command", "", "Command name for delete-specific action")
	guildID := flag.String("guild", "", "Guild to manage instead of the global commands")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Discord.Token == "" {
		log.Fatal(config.ErrDiscordTokenNotSet)
	}

	logger := pipeline.DefaultLogger()

	// Create Discord session
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}

	// Open connection
	if err := dg.Open(); err != nil {
		log.Fatalf("Failed to open Discord session: %v", err)
	}
	defer dg.Close()

	appID := dg.State.User.ID

	// Perform the requested action
	switch *action {
	case "register":
		err = commands.RegisterSlashCommands(dg, appID, *guildID, logger)
	case "delete-all":
		err = commands.DeleteAllSlashCommands(dg, appID, *guildID, logger)
	case "delete-specific":
		if *commandName == "" {
			log.Fatal("Please provide a command name with -command flag")
		}
		err = commands.DeleteSlashCommand(dg, appID, *guildID, *commandName, logger)
	case "check":
		checkCommands(dg, appID)
	default:
		log.Println("Usage:")
		log.Println("  slashctl -action register [-guild <id>]")
		log.Println("  slashctl -action delete-all")
		log.Println("  slashctl -action delete-specific -command ask")
		log.Println("  slashctl -action check")
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", *action, err)
	}
}

// checkCommands lists all currently registered commands
func checkCommands(s *discordgo.Session, appID string) {
	log.Println("=== GLOBAL COMMANDS ===")
	globalCommands, err := s.ApplicationCommands(appID, "")
	if err != nil {
		log.Printf("Error fetching global commands: %v", err)
	} else if len(globalCommands) == 0 {
		log.Println("No global commands found.")
	}
	for _, cmd := range globalCommands {
		log.Printf("Global: %s (ID: %s) - %s", cmd.Name, cmd.ID, cmd.Description)
	}

	log.Println("\n=== GUILD COMMANDS ===")
	totalGuildCommands := 0
	for _, guild := range s.State.Guilds {
		guildCommands, err := s.ApplicationCommands(appID, guild.ID)
		if err != nil {
			log.Printf("Error fetching commands for guild %s: %v", guild.Name, err)
			continue
		}

		if len(guildCommands) > 0 {
			log.Printf("Guild: %s (ID: %s)", guild.Name, guild.ID)
			for _, cmd := range guildCommands {
				log.Printf("  - %s (ID: %s) - %s", cmd.Name, cmd.ID, cmd.Description)
			}
		}
		totalGuildCommands += len(guildCommands)
	}

	log.Println("\n=== SUMMARY ===")
	log.Printf("Total global commands: %d", len(globalCommands))
	log.Printf("Total guild commands: %d", totalGuildCommands)
}
