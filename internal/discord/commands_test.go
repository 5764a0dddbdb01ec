package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/discord/mock"
	audiomock "github.com/0xChin/ricardo/pkg/audio/mock"
)

// memberInteraction builds a /record subcommand interaction from a guild
// member with the given roles.
func memberInteraction(sub string, opts []*discordgo.ApplicationCommandInteractionDataOption, roles ...string) *discordgo.InteractionCreate {
	i := commandInteraction("record", sub)
	i.Member = &discordgo.Member{Roles: roles}
	if opts != nil {
		data := i.Data.(discordgo.ApplicationCommandInteractionData)
		data.Options[0].Options = opts
		i.Data = data
	}
	return i
}

func channelOpt(channelID string) []*discordgo.ApplicationCommandInteractionDataOption {
	return []*discordgo.ApplicationCommandInteractionDataOption{
		{
			Name:  "channel",
			Type:  discordgo.ApplicationCommandOptionChannel,
			Value: channelID,
		},
	}
}

func newTestCommands(t *testing.T, conn *audiomock.Connection, roleID string) *commands {
	t.Helper()
	engine := newTestEngine(t, &collectDispatcher{})
	platform := &audiomock.Platform{ConnectResult: conn}
	rec, err := NewRecorder(platform, engine, archive.NewMemStore(),
		WithRecorderLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return &commands{rec: rec, perms: NewPermissionChecker(roleID)}
}

func TestCommands_StartRequiresPermission(t *testing.T) {
	t.Parallel()
	c := newTestCommands(t, audiomock.NewConnection("war-room"), "role-rec")
	resp := &mock.InteractionResponder{}

	c.start(resp, memberInteraction("start", channelOpt("chan-42"), "role-other"))

	last := resp.LastResponse()
	if last == nil || !strings.Contains(last.Data.Content, "not allowed") {
		t.Errorf("response = %+v, want permission denial", last)
	}
}

func TestCommands_StartAndStatus(t *testing.T) {
	t.Parallel()
	c := newTestCommands(t, audiomock.NewConnection("war-room"), "")
	resp := &mock.InteractionResponder{}

	c.start(resp, memberInteraction("start", channelOpt("chan-42")))
	last := resp.LastResponse()
	if last == nil || !strings.Contains(last.Data.Content, "Recording started") {
		t.Fatalf("start response = %+v", last)
	}
	if last.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("start response should be ephemeral")
	}

	c.status(resp, memberInteraction("status", nil))
	last = resp.LastResponse()
	if last == nil || !strings.Contains(last.Data.Content, "war-room") {
		t.Errorf("status response = %+v, want channel name", last)
	}
}

func TestCommands_StartTwice(t *testing.T) {
	t.Parallel()
	c := newTestCommands(t, audiomock.NewConnection("war-room"), "")
	resp := &mock.InteractionResponder{}

	c.start(resp, memberInteraction("start", channelOpt("chan-42")))
	c.start(resp, memberInteraction("start", channelOpt("chan-43")))

	last := resp.LastResponse()
	if last == nil || !strings.Contains(last.Data.Content, "already active") {
		t.Errorf("second start response = %+v", last)
	}
}

func TestCommands_StartWithoutChannel(t *testing.T) {
	t.Parallel()
	c := newTestCommands(t, audiomock.NewConnection("war-room"), "")
	resp := &mock.InteractionResponder{}

	c.start(resp, memberInteraction("start", nil))
	last := resp.LastResponse()
	if last == nil || !strings.Contains(last.Data.Content, "voice channel") {
		t.Errorf("response = %+v, want channel prompt", last)
	}
}

func TestCommands_StopFlow(t *testing.T) {
	t.Parallel()
	c := newTestCommands(t, audiomock.NewConnection("war-room"), "")
	resp := &mock.InteractionResponder{}

	c.start(resp, memberInteraction("start", channelOpt("chan-42")))
	c.stop(resp, memberInteraction("stop", nil))

	if len(resp.Responses) != 2 {
		t.Fatalf("got %d responses, want start reply plus deferred stop", len(resp.Responses))
	}
	if resp.Responses[1].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("stop response type = %v, want deferred", resp.Responses[1].Type)
	}
	fu := resp.LastFollowUp()
	if fu == nil || !strings.Contains(fu.Content, "Stopped recording") {
		t.Errorf("follow-up = %+v", fu)
	}
}

func TestCommands_StopWithoutSession(t *testing.T) {
	t.Parallel()
	c := newTestCommands(t, audiomock.NewConnection("war-room"), "")
	resp := &mock.InteractionResponder{}

	c.stop(resp, memberInteraction("stop", nil))
	fu := resp.LastFollowUp()
	if fu == nil || !strings.Contains(fu.Content, "Nothing is being recorded") {
		t.Errorf("follow-up = %+v", fu)
	}
}

func TestCommands_StatusWithoutSession(t *testing.T) {
	t.Parallel()
	c := newTestCommands(t, audiomock.NewConnection("war-room"), "")
	resp := &mock.InteractionResponder{}

	c.status(resp, memberInteraction("status", nil))
	last := resp.LastResponse()
	if last == nil || !strings.Contains(last.Data.Content, "Nothing is being recorded") {
		t.Errorf("response = %+v", last)
	}
}

func TestStopMessage(t *testing.T) {
	t.Parallel()
	started := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	res := &StopResult{
		SessionID:   "s1",
		ChannelName: "war-room",
		StartedAt:   started,
		EndedAt:     started.Add(42 * time.Minute),
		Turns:       17,
	}

	msg := stopMessage(res)
	if !strings.Contains(msg, "war-room") || !strings.Contains(msg, "42m0s") || !strings.Contains(msg, "17 turns") {
		t.Errorf("stopMessage = %q", msg)
	}
	if strings.Contains(msg, "Recap") {
		t.Error("message without recap should not have a recap section")
	}

	res.Recap = "- Launch is on."
	msg = stopMessage(res)
	if !strings.Contains(msg, "**Recap**\n- Launch is on.") {
		t.Errorf("stopMessage with recap = %q", msg)
	}
}

func TestChannelOption(t *testing.T) {
	t.Parallel()
	if got := channelOption(memberInteraction("start", channelOpt("chan-9"))); got != "chan-9" {
		t.Errorf("channelOption = %q, want chan-9", got)
	}
	if got := channelOption(memberInteraction("start", nil)); got != "" {
		t.Errorf("channelOption = %q, want empty", got)
	}
}
