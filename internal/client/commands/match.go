package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chessroom/internal/server/core"
)

const connectTimeout = 10 * time.Second

func (r *Registry) registerMatchCommands() {
	r.Register(&Command{
		Name:        "join",
		ShortName:   "j",
		Description: "Join a match, creating it if new",
		Usage:       "join <matchId>",
		Handler:     joinHandler,
	})
	r.Register(&Command{
		Name:        "move",
		ShortName:   "m",
		Description: "Make a move",
		Usage:       "move <uci-move> (e.g. e2e4, e7e8q)",
		Handler:     moveHandler,
	})
	r.Register(&Command{
		Name:        "resign",
		ShortName:   "r",
		Description: "Resign the match",
		Usage:       "resign",
		Handler:     resignHandler,
	})
	r.Register(&Command{
		Name:        "draw",
		ShortName:   "d",
		Description: "Offer, accept or reject a draw",
		Usage:       "draw [offer|accept|reject]",
		Handler:     drawHandler,
	})
	r.Register(&Command{
		Name:        "say",
		ShortName:   "t",
		Description: "Send a chat message to the match",
		Usage:       "say <text>",
		Handler:     sayHandler,
	})
	r.Register(&Command{
		Name:        "show",
		ShortName:   "s",
		Description: "Show board and clocks",
		Usage:       "show",
		Handler:     showHandler,
	})
	r.Register(&Command{
		Name:        "leave",
		ShortName:   "l",
		Description: "Close the connection, ending any match in progress",
		Usage:       "leave",
		Handler:     leaveHandler,
	})
}

func joinHandler(r *Registry, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: join <matchId>")
	}

	if !r.conn.Connected() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := r.conn.Connect(ctx); err != nil {
			return err
		}
	}

	r.session.Joining(args[0])
	return r.session.Send(core.Action{Type: core.ActionJoin, MatchID: args[0]})
}

// ParseMove reads UCI long algebraic notation into a move
func ParseMove(s string) (core.Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return core.Move{}, fmt.Errorf("invalid move %q: expected UCI like e2e4 or e7e8q", s)
	}
	mv := core.Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		mv.Promotion = s[4:]
	}
	for _, sq := range []string{mv.From, mv.To} {
		if sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
			return core.Move{}, fmt.Errorf("invalid square %q", sq)
		}
	}
	if mv.Promotion != "" && !strings.Contains("qrbn", mv.Promotion) {
		return core.Move{}, fmt.Errorf("invalid promotion %q", mv.Promotion)
	}
	return mv, nil
}

func moveHandler(r *Registry, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: move <uci-move>")
	}
	mv, err := ParseMove(args[0])
	if err != nil {
		return err
	}
	return r.session.Send(core.Action{Type: core.ActionMove, Move: &mv})
}

func resignHandler(r *Registry, args []string) error {
	return r.session.Send(core.Action{Type: core.ActionResign, Side: r.session.Snapshot().Side})
}

func drawHandler(r *Registry, args []string) error {
	verb := "offer"
	if len(args) > 0 {
		verb = args[0]
	}

	snap := r.session.Snapshot()
	switch verb {
	case "offer", "o":
		return r.session.Send(core.Action{Type: core.ActionOfferDraw, Side: snap.Side})
	case "accept", "a":
		return r.session.Send(core.Action{Type: core.ActionAcceptDraw, Side: snap.Side})
	case "reject", "r":
		return r.session.Send(core.Action{Type: core.ActionRejectDraw, Side: snap.Side})
	default:
		return fmt.Errorf("usage: draw [offer|accept|reject]")
	}
}

func sayHandler(r *Registry, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: say <text>")
	}
	snap := r.session.Snapshot()
	return r.session.Send(core.Action{Type: core.ActionChat, Side: snap.Side, Text: strings.Join(args, " ")})
}

func showHandler(r *Registry, args []string) error {
	snap := r.session.Snapshot()
	if snap.MatchID == "" {
		return fmt.Errorf("no match joined")
	}
	r.session.Render()
	return nil
}

func leaveHandler(r *Registry, args []string) error {
	if !r.conn.Connected() {
		return fmt.Errorf("not connected")
	}
	return r.conn.Close()
}
