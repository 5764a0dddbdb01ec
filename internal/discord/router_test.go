package discord

import (
	"io"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/0xChin/ricardo/internal/discord/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPermissionChecker_CanRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roleID string
		inter  *discordgo.InteractionCreate
		want   bool
	}{
		{
			name:   "user with recorder role",
			roleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{Roles: []string{"role-456", "role-123"}},
				},
			},
			want: true,
		},
		{
			name:   "user without recorder role",
			roleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{Roles: []string{"role-456"}},
				},
			},
			want: false,
		},
		{
			name:   "empty role ID allows all members",
			roleID: "",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{Roles: []string{}},
				},
			},
			want: true,
		},
		{
			name:   "nil Member is denied",
			roleID: "",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{Member: nil},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPermissionChecker(tt.roleID)
			if got := pc.CanRecord(tt.inter); got != tt.want {
				t.Errorf("CanRecord() = %v, want %v", got, tt.want)
			}
		})
	}
}

func commandInteraction(name, sub string) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: name}
	if sub != "" {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: sub, Type: discordgo.ApplicationCommandOptionSubCommand},
		}
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: data,
		},
	}
}

func TestCommandRouter_DispatchesSubcommand(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter(testLogger())

	var called string
	r.RegisterCommand("record/start", recordCommand, func(_ Responder, _ *discordgo.InteractionCreate) {
		called = "record/start"
	})
	r.RegisterCommand("record/stop", nil, func(_ Responder, _ *discordgo.InteractionCreate) {
		called = "record/stop"
	})

	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction("record", "stop"))
	if called != "record/stop" {
		t.Errorf("called = %q, want record/stop", called)
	}
	if len(resp.Responses) != 0 {
		t.Errorf("router should not respond itself, got %d responses", len(resp.Responses))
	}
}

func TestCommandRouter_UnknownCommand(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter(testLogger())

	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction("unknown", ""))

	last := resp.LastResponse()
	if last == nil {
		t.Fatal("expected an ephemeral response for an unknown command")
	}
	if last.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("unknown-command response should be ephemeral")
	}
}

func TestCommandRouter_IgnoresNonCommandInteractions(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter(testLogger())
	resp := &mock.InteractionResponder{}

	r.Handle(resp, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{Type: discordgo.InteractionMessageComponent},
	})
	if len(resp.Responses) != 0 {
		t.Errorf("got %d responses for a component interaction, want 0", len(resp.Responses))
	}
}

func TestCommandRouter_ApplicationCommandsDeduplicated(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter(testLogger())
	noop := func(_ Responder, _ *discordgo.InteractionCreate) {}

	r.RegisterCommand("record/start", recordCommand, noop)
	r.RegisterCommand("record/stop", nil, noop)
	r.RegisterCommand("record/status", nil, noop)

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 {
		t.Fatalf("got %d top-level commands, want 1", len(cmds))
	}
	if cmds[0].Name != "record" {
		t.Errorf("command name = %q, want record", cmds[0].Name)
	}
}
