package handlers

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// HideEmoji hides the shown answer when added as a reaction
const HideEmoji = "❌"

// AnswerHider is the Discord answer display
type AnswerHider interface {
	Hide(ctx context.Context) error
	MessageID() string
}

// ReactionHandler hides the current answer when someone reacts to it with HideEmoji
type ReactionHandler struct {
	display AnswerHider
	logger  pipeline.Logger
}

// NewReactionHandler creates the handler
func NewReactionHandler(display AnswerHider, logger pipeline.Logger) *ReactionHandler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &ReactionHandler{display: display, logger: logger.With(pipeline.String("component", "reaction_handler"))}
}

// Handle is registered with the Discord session
func (h *ReactionHandler) Handle(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s == nil || s.State == nil || s.State.User == nil {
		return
	}
	h.HandleReaction(s.State.User.ID, r)
}

// HandleReaction processes one added reaction
func (h *ReactionHandler) HandleReaction(botID string, r *discordgo.MessageReactionAdd) {
	if r == nil || r.MessageReaction == nil {
		return
	}

	// Ignore reactions from the bot itself
	if r.UserID == botID || r.Emoji.Name != HideEmoji {
		return
	}

	if current := h.display.MessageID(); current == "" || current != r.MessageID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.display.Hide(ctx); err != nil {
		h.logger.Warn("Failed to hide answer", pipeline.String("message_id", r.MessageID), pipeline.Error(err))
		return
	}
	h.logger.Debug("Answer hidden by reaction", pipeline.String("user_id", r.UserID))
}
