package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/0xChin/ricardo/internal/capture"
)

// commandTimeout bounds the engine round trip behind each slash command.
// Stop gets a longer budget because it waits for transcription and the
// recap LLM call.
const (
	commandTimeout = 10 * time.Second
	stopTimeout    = 2 * time.Minute
)

// recordCommand is the /record slash command definition.
var recordCommand = &discordgo.ApplicationCommand{
	Name:        "record",
	Description: "Control voice session recording",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "start",
			Description: "Start recording a voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Voice channel to record",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
					Required:     true,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "stop",
			Description: "Stop recording and post the session recap",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "status",
			Description: "Show the active recording session",
		},
	},
}

// RegisterCommands wires the /record command handlers onto the router.
func RegisterCommands(router *CommandRouter, rec *Recorder, perms *PermissionChecker) {
	c := &commands{rec: rec, perms: perms}
	router.RegisterCommand("record/start", recordCommand, c.start)
	router.RegisterCommand("record/stop", nil, c.stop)
	router.RegisterCommand("record/status", nil, c.status)
}

type commands struct {
	rec   *Recorder
	perms *PermissionChecker
}

func (c *commands) start(r Responder, i *discordgo.InteractionCreate) {
	if !c.perms.CanRecord(i) {
		RespondEphemeral(r, i, "You are not allowed to control recording.")
		return
	}
	channelID := channelOption(i)
	if channelID == "" {
		RespondEphemeral(r, i, "Pick a voice channel to record.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	sessionID, err := c.rec.Start(ctx, channelID)
	if err != nil {
		if errors.Is(err, capture.ErrAlreadyRecording) {
			RespondEphemeral(r, i, "A recording session is already active. Stop it first.")
			return
		}
		RespondError(r, i, err)
		return
	}
	RespondEphemeral(r, i, fmt.Sprintf("Recording started (session `%s`).", sessionID))
}

func (c *commands) stop(r Responder, i *discordgo.InteractionCreate) {
	if !c.perms.CanRecord(i) {
		RespondEphemeral(r, i, "You are not allowed to control recording.")
		return
	}

	// Stopping waits for transcription and the recap, so defer the reply.
	DeferReply(r, i)

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	res, err := c.rec.Stop(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrNoActiveSession) {
			FollowUp(r, i, "Nothing is being recorded.")
			return
		}
		FollowUp(r, i, fmt.Sprintf("Error: %v", err))
		return
	}
	FollowUp(r, i, stopMessage(res))
}

func (c *commands) status(r Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	info, err := c.rec.Status(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrNoActiveSession) {
			RespondEphemeral(r, i, "Nothing is being recorded.")
			return
		}
		RespondError(r, i, err)
		return
	}
	RespondEphemeral(r, i, fmt.Sprintf(
		"Recording **%s** since %s (%d speakers talking, %d turns captured).",
		info.ChannelName,
		info.StartedAt.Format("15:04:05"),
		info.ActiveTurns,
		info.CompletedTurns,
	))
}

// stopMessage renders the user-facing summary of a stopped session.
func stopMessage(res *StopResult) string {
	elapsed := res.EndedAt.Sub(res.StartedAt).Round(time.Second)
	head := fmt.Sprintf("Stopped recording **%s** after %s (%d turns).",
		res.ChannelName, elapsed, res.Turns)
	if res.Recap == "" {
		return head
	}
	return head + "\n\n**Recap**\n" + res.Recap
}

// channelOption extracts the channel ID of the start subcommand.
func channelOption(i *discordgo.InteractionCreate) string {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return ""
	}
	for _, opt := range data.Options[0].Options {
		if opt.Name == "channel" && opt.Type == discordgo.ApplicationCommandOptionChannel {
			if id, ok := opt.Value.(string); ok {
				return id
			}
		}
	}
	return ""
}
