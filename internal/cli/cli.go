// Package cli parses the studyvoice command line into a Parsed value.
package cli

import (
	"bytes"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type Command string

const (
	CommandLive       Command = "live"
	CommandToggle     Command = "toggle"
	CommandStop       Command = "stop"
	CommandStatus     Command = "status"
	CommandSay        Command = "say"
	CommandSpeak      Command = "speak"
	CommandTranscribe Command = "transcribe"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// Parsed is the resolved invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// Text is the utterance for say and speak.
	Text string
	// Path is the WAV file for transcribe.
	Path string
}

// Parse resolves args against a fresh command tree.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	root := newRootCommand(&parsed)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// HelpText renders usage for binaryName.
func HelpText(binaryName string) string {
	var parsed Parsed
	root := newRootCommand(&parsed)
	root.Use = binaryName
	var b bytes.Buffer
	root.SetOut(&b)
	_ = root.Help()
	return b.String()
}

func newRootCommand(parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:           "studyvoice",
		Short:         "Hands-free voice sessions with a study tutor",
		Long:          "studyvoice listens for speech, segments it into turns, asks a tutor for a reply, and speaks the answer back.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				parsed.ShowHelp = false
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/studyvoice/config.jsonc)")
	root.Flags().BoolVar(&showVersion, "version", false, "show version")

	set := func(command Command) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			parsed.Command = command
			parsed.ShowHelp = false
			switch command {
			case CommandSay, CommandSpeak:
				parsed.Text = strings.Join(args, " ")
			case CommandTranscribe:
				parsed.Path = args[0]
			}
			return nil
		}
	}

	simple := []struct {
		command Command
		short   string
	}{
		{CommandLive, "Run a live voice session in the foreground"},
		{CommandToggle, "Start a live session or stop the running one"},
		{CommandStop, "Stop the running live session"},
		{CommandStatus, "Print the live session state"},
		{CommandDevices, "List available input devices"},
		{CommandDoctor, "Run configuration and environment checks"},
		{CommandVersion, "Print version information"},
	}
	for _, s := range simple {
		root.AddCommand(&cobra.Command{
			Use:   string(s.command),
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE:  set(s.command),
		})
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "say TEXT...",
			Short: "Ask the running live session to speak text",
			Args:  cobra.MinimumNArgs(1),
			RunE:  set(CommandSay),
		},
		&cobra.Command{
			Use:   "speak TEXT...",
			Short: "Speak text once without a live session",
			Args:  cobra.MinimumNArgs(1),
			RunE:  set(CommandSpeak),
		},
		&cobra.Command{
			Use:   "transcribe FILE.wav",
			Short: "Transcribe a WAV file with the backend recognizer",
			Args:  cobra.ExactArgs(1),
			RunE:  set(CommandTranscribe),
		},
	)

	return root
}
