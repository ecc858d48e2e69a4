// Package commands implements the terminal client's command set.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"chessroom/internal/client/display"
	"chessroom/internal/client/session"
)

// ErrExit is returned by the exit command
var ErrExit = errors.New("exit")

// Conn is the connection lifecycle the client commands drive
type Conn interface {
	session.Sender
	Connect(ctx context.Context) error
	Connected() bool
	Close() error
	SetURL(url string)
}

// Command defines a client command with its handler
type Command struct {
	Name        string
	ShortName   string
	Description string
	Usage       string
	Handler     func(*Registry, []string) error
}

// Registry manages command registration and execution
type Registry struct {
	session  *session.Session
	conn     Conn
	out      io.Writer
	commands map[string]*Command
}

func NewRegistry(s *session.Session, conn Conn) *Registry {
	r := &Registry{
		session:  s,
		conn:     conn,
		out:      s.Out,
		commands: make(map[string]*Command),
	}

	r.registerMatchCommands()

	r.Register(&Command{
		Name:        "url",
		ShortName:   "/",
		Description: "Set the server websocket URL (reconnects on next join)",
		Usage:       "url <ws://host:port/ws>",
		Handler:     urlHandler,
	})
	r.Register(&Command{
		Name:        "help",
		ShortName:   "?",
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     helpHandler,
	})
	r.Register(&Command{
		Name:        "exit",
		ShortName:   "x",
		Description: "Exit the client",
		Usage:       "exit",
		Handler:     exitHandler,
	})

	return r
}

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		r.commands[cmd.ShortName] = cmd
	}
}

// Execute runs one input line. It returns ErrExit when the client should quit.
func (r *Registry) Execute(input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd, exists := r.commands[parts[0]]
	if !exists {
		fmt.Fprintf(r.out, "%sUnknown command: %s%s\n", display.Red, parts[0], display.Reset)
		fmt.Fprintf(r.out, "Type 'help' for available commands\n")
		return nil
	}

	err := cmd.Handler(r, parts[1:])
	if errors.Is(err, ErrExit) {
		return err
	}
	if err != nil {
		fmt.Fprintf(r.out, "%sError: %s%s\n", display.Red, err.Error(), display.Reset)
	}
	return nil
}

func urlHandler(r *Registry, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: url <ws://host:port/ws>")
	}
	if r.conn.Connected() {
		if err := r.conn.Close(); err != nil {
			return err
		}
	}
	r.conn.SetURL(args[0])
	fmt.Fprintf(r.out, "Server URL set to %s\n", args[0])
	return nil
}

func helpHandler(r *Registry, args []string) error {
	if len(args) > 0 {
		cmd, exists := r.commands[args[0]]
		if !exists {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Fprintf(r.out, "\n%s%s%s - %s\n", display.Cyan, cmd.Name, display.Reset, cmd.Description)
		if cmd.ShortName != "" {
			fmt.Fprintf(r.out, "Short form: %s%s%s\n", display.Cyan, cmd.ShortName, display.Reset)
		}
		fmt.Fprintf(r.out, "Usage: %s\n", cmd.Usage)
		return nil
	}

	seen := make(map[string]*Command)
	for _, cmd := range r.commands {
		seen[cmd.Name] = cmd
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(r.out, "\n%sAvailable Commands:%s\n\n", display.Cyan, display.Reset)
	for _, name := range names {
		cmd := seen[name]
		shortPart := "    "
		if cmd.ShortName != "" {
			shortPart = fmt.Sprintf("[%s%s%s] ", display.Cyan, cmd.ShortName, display.Reset)
		}
		fmt.Fprintf(r.out, "  %s%-8s %s\n", shortPart, cmd.Name, cmd.Description)
	}
	fmt.Fprintf(r.out, "\nType 'help <command>' for detailed usage\n")
	return nil
}

func exitHandler(r *Registry, args []string) error {
	fmt.Fprintf(r.out, "%sGoodbye!%s\n", display.Cyan, display.Reset)
	return ErrExit
}
