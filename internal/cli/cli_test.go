package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/studyvoice.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/studyvoice.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
		wantText string
		wantWAV  string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantCmd: CommandVersion,
		},
		{
			name:     "config after command",
			args:     []string{"status", "--config", "/tmp/cfg"},
			wantCmd:  CommandStatus,
			wantPath: "/tmp/cfg",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "needs an argument",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unknown command",
		},
		{
			name:    "live",
			args:    []string{"live"},
			wantCmd: CommandLive,
		},
		{
			name:     "stop with config",
			args:     []string{"--config", "/tmp/cfg", "stop"},
			wantCmd:  CommandStop,
			wantPath: "/tmp/cfg",
		},
		{
			name:     "say joins words",
			args:     []string{"say", "hello", "there"},
			wantCmd:  CommandSay,
			wantText: "hello there",
		},
		{
			name:    "say requires text",
			args:    []string{"say"},
			wantErr: "requires at least 1 arg",
		},
		{
			name:     "speak quoted text",
			args:     []string{"speak", "two plus two is four"},
			wantCmd:  CommandSpeak,
			wantText: "two plus two is four",
		},
		{
			name:    "transcribe file",
			args:    []string{"transcribe", "/tmp/clip.wav"},
			wantCmd: CommandTranscribe,
			wantWAV: "/tmp/clip.wav",
		},
		{
			name:    "transcribe needs one file",
			args:    []string{"transcribe", "a.wav", "b.wav"},
			wantErr: "accepts 1 arg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantText, parsed.Text)
			require.Equal(t, tc.wantWAV, parsed.Path)
		})
	}
}

func TestParseDoesNotLeakStateBetweenCalls(t *testing.T) {
	_, err := Parse([]string{"--config", "/tmp/a", "say", "hi"})
	require.NoError(t, err)

	parsed, err := Parse([]string{"status"})
	require.NoError(t, err)
	require.Empty(t, parsed.ConfigPath)
	require.Empty(t, parsed.Text)
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("studyvoice")
	for _, want := range []string{"live", "toggle", "stop", "say", "speak", "transcribe", "doctor", "--config"} {
		require.Contains(t, text, want)
	}
}
