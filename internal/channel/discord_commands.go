package channel

import (
	"fmt"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/relay"

	"github.com/bwmarrin/discordgo"
)

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "ask",
		Description: "Ask the bot a one-off question",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prompt",
				Description: "What do you want to ask?",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "model",
				Description: "Answer with a specific model instead of the default",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "OpenAI", Value: string(domain.PlatformOpenAI)},
					{Name: "Google", Value: string(domain.PlatformGoogle)},
				},
			},
		},
	},
	{
		Name:        "default-model",
		Description: "Set the model used when a conversation has no preference (admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "model",
				Description: "The model to use by default",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "OpenAI", Value: string(domain.PlatformOpenAI)},
					{Name: "Google", Value: string(domain.PlatformGoogle)},
				},
			},
		},
	},
	{
		Name:        "sync",
		Description: "Re-register the slash commands (admin only)",
	},
}

// registerSlashCommands installs the command set. Outside production
// the commands are scoped to the development guild so they appear
// instantly; global registration can take Discord up to an hour to
// propagate.
func (d *Discord) registerSlashCommands() {
	guildID := ""
	if !d.production {
		guildID = d.devGuildID
	}
	appID := d.session.State.User.ID
	for _, cmd := range slashCommands {
		if _, err := d.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			d.logger.Error("failed to register slash command", "command", cmd.Name, "err", err)
		}
	}
}

func (d *Discord) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	if !d.allowedGuild(i.GuildID) {
		d.respondEphemeral(i, inDevelopmentString)
		return
	}

	switch data.Name {
	case "ask":
		d.handleAsk(i, data)
	case "default-model":
		d.handleDefaultModel(i, data)
	case "sync":
		d.handleSync(i)
	}
}

func (d *Discord) handleAsk(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	var prompt string
	var override domain.Platform
	for _, opt := range data.Options {
		switch opt.Name {
		case "prompt":
			prompt = opt.StringValue()
		case "model":
			override = domain.Platform(opt.StringValue())
		}
	}

	// Acknowledge with the thinking prompt first; slash commands must
	// be answered within three seconds and generation takes longer.
	err := d.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: randomThinkingPrompt()},
	})
	if err != nil {
		d.logger.Error("failed to acknowledge interaction", "err", err)
		return
	}

	req := domain.Request{
		MessageID: i.ID,
		Content:   prompt,
		SenderID:  interactionUserID(i),
		Platform:  override,
		Channel:   "discord",
		Timestamp: time.Now(),
	}

	res, latency := d.generate(i.ChannelID, req)
	if res == nil {
		d.editInteraction(i, textGenerationErrorString)
		return
	}

	text := relay.Truncate(res.Text, discordMaxMsgLen)
	msg, err := d.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &text})
	if err != nil {
		d.logger.Error("failed to edit interaction response", "err", err)
		d.editInteraction(i, textGenerationErrorString)
		return
	}

	d.persistExchange(req, msg.ID, text, res, latency)

	d.logger.Info("answered slash command",
		"command", "ask",
		"platform", string(res.Platform),
	)
}

func (d *Discord) handleDefaultModel(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !d.isAdmin(i) {
		d.respondEphemeral(i, permissionErrorString)
		return
	}

	platform := domain.Platform(data.Options[0].StringValue())
	previous, err := d.store.SetDefaultPlatform(platform)
	if err != nil {
		d.logger.Error("failed to set default model", "err", err)
		d.respondEphemeral(i, textGenerationErrorString)
		return
	}
	if err := d.store.Flush(); err != nil {
		d.logger.Error("store flush failed after default-model change", "err", err)
	}

	d.logger.Info("default model changed",
		"from", string(previous),
		"to", string(platform),
		"by", interactionUserID(i),
	)
	d.respondEphemeral(i, fmt.Sprintf("Gotcha, the default model's set to %s from %s.", platform, previous))
}

func (d *Discord) handleSync(i *discordgo.InteractionCreate) {
	if !d.isAdmin(i) {
		d.respondEphemeral(i, permissionErrorString)
		return
	}
	d.registerSlashCommands()
	d.logger.Info("slash commands re-registered", "by", interactionUserID(i))
	d.respondEphemeral(i, fmt.Sprintf("Synced %d commands.", len(slashCommands)))
}

func (d *Discord) isAdmin(i *discordgo.InteractionCreate) bool {
	return d.adminID != "" && interactionUserID(i) == d.adminID
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (d *Discord) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := d.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		d.logger.Error("failed to respond to interaction", "err", err)
	}
}

func (d *Discord) editInteraction(i *discordgo.InteractionCreate, content string) {
	if _, err := d.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		d.logger.Error("failed to edit interaction response", "err", err)
	}
}
