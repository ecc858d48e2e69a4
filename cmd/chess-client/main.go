// Package main implements an interactive terminal client for the match server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"chessroom/internal/client/api"
	"chessroom/internal/client/commands"
	"chessroom/internal/client/display"
	"chessroom/internal/client/session"

	"github.com/alecthomas/kong"
	"github.com/chzyer/readline"
)

var CLI struct {
	URL     string `default:"ws://localhost:8081/ws" env:"CHESSROOM_URL" help:"Server websocket URL."`
	History string `default:".chessroom_history" help:"Readline history file."`
	Join    string `arg:"" optional:"" help:"Match id to join on start."`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("chess-client"),
		kong.Description("terminal client for the chessroom match server"),
		kong.UsageOnError())

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          display.Prompt("chess"),
		HistoryFile:     CLI.History,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("%s%s%s\n", display.Red, err.Error(), display.Reset)
		os.Exit(1)
	}
	defer rl.Close()

	client := api.New(CLI.URL)
	defer client.Close()

	s := session.New(rl.Stdout(), client)
	registry := commands.NewRegistry(s, client)

	fmt.Fprintf(rl.Stdout(), "%sChessroom Client%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(rl.Stdout(), "%sServer: %s%s\n", display.Cyan, CLI.URL, display.Reset)
	fmt.Fprintf(rl.Stdout(), "Type 'help' for commands\n\n")

	var pumping <-chan api.Event
	watch := func() {
		// Each connection gets its own event channel
		if ch := client.Events(); ch != nil && ch != pumping {
			pumping = ch
			go pump(s, client, ch)
		}
	}

	if CLI.Join != "" {
		if err := registry.Execute("join " + CLI.Join); errors.Is(err, commands.ErrExit) {
			return
		}
		watch()
	}

	for {
		rl.SetPrompt(buildPrompt(s.Snapshot(), client.Connected()))

		line, err := rl.Readline()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "quit" {
			line = "exit"
		}
		if err := registry.Execute(line); errors.Is(err, commands.ErrExit) {
			break
		}
		watch()
	}
}

// pump applies events of one connection until it closes
func pump(s *session.Session, client *api.Client, events <-chan api.Event) {
	for ev := range events {
		if err := s.Apply(ev); err != nil {
			fmt.Fprintf(s.Out, "%sbad %s event: %s%s\n", display.Red, ev.Type, err.Error(), display.Reset)
		}
	}
	if err := client.Err(); err != nil {
		fmt.Fprintf(s.Out, "%sConnection lost: %s%s\n", display.Red, err.Error(), display.Reset)
	}
}

func buildPrompt(snap session.Snapshot, connected bool) string {
	prompt := "chess"
	if !connected {
		return display.Prompt(prompt)
	}

	var parts []string
	if snap.MatchID != "" {
		parts = append(parts, display.White+snap.MatchID+display.Reset)
	}
	if snap.Side.Valid() {
		parts = append(parts, display.SideName(snap.Side))
	}
	if len(parts) > 0 {
		prompt += display.Yellow + " [" + display.Reset + strings.Join(parts, " ") + display.Yellow + "]"
	}

	if snap.Ended != nil {
		prompt += " - " + display.Magenta + "ended" + display.Reset
	} else if b, err := display.ParseFEN(snap.FEN); err == nil {
		turn := " - Turn:" + display.SideName(b.Turn())
		if b.Turn() == snap.Side {
			turn += "(you)"
		}
		prompt += turn
	}
	return display.Prompt(prompt)
}
