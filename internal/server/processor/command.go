package processor

import (
	"fmt"

	"chessroom/internal/server/core"
)

// CommandType defines the type of command being executed
type CommandType int

const (
	CmdJoin CommandType = iota
	CmdMove
	CmdResign
	CmdOfferDraw
	CmdAcceptDraw
	CmdRejectDraw
	CmdChat
	CmdReportEnd
	CmdDisconnect
	CmdTick
)

var commandNames = map[CommandType]string{
	CmdJoin:       "join",
	CmdMove:       "move",
	CmdResign:     "resign",
	CmdOfferDraw:  "offer-draw",
	CmdAcceptDraw: "accept-draw",
	CmdRejectDraw: "reject-draw",
	CmdChat:       "chat",
	CmdReportEnd:  "client-reported-end",
	CmdDisconnect: "disconnect",
	CmdTick:       "tick",
}

func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(t))
}

// Command is a unified structure for all processor operations
type Command struct {
	Type    CommandType
	MatchID string // empty only for a disconnect from every match
	ConnID  string // originating connection, empty for clock ticks
	Args    any    // Command-specific arguments
}

type SideArgs struct {
	Side core.Side
}

type ChatArgs struct {
	Side core.Side
	Text string
}

type ReportEndArgs struct {
	Winner core.Side
	Reason core.Reason
}

type TickArgs struct {
	Generation uint64
}

// NewActionCommand converts a validated inbound action into a command
func NewActionCommand(connID string, a core.Action) (Command, error) {
	cmd := Command{MatchID: a.MatchID, ConnID: connID}

	switch a.Type {
	case core.ActionJoin:
		cmd.Type = CmdJoin
	case core.ActionMove:
		if a.Move == nil {
			return Command{}, fmt.Errorf("move action without move")
		}
		cmd.Type = CmdMove
		cmd.Args = *a.Move
	case core.ActionResign:
		cmd.Type = CmdResign
		cmd.Args = SideArgs{Side: a.Side}
	case core.ActionOfferDraw:
		cmd.Type = CmdOfferDraw
		cmd.Args = SideArgs{Side: a.Side}
	case core.ActionAcceptDraw:
		cmd.Type = CmdAcceptDraw
	case core.ActionRejectDraw:
		cmd.Type = CmdRejectDraw
	case core.ActionChat:
		cmd.Type = CmdChat
		cmd.Args = ChatArgs{Side: a.Side, Text: a.Text}
	case core.ActionReportEnd:
		cmd.Type = CmdReportEnd
		cmd.Args = ReportEndArgs{Winner: a.Winner, Reason: a.Reason}
	default:
		return Command{}, fmt.Errorf("unsupported action %q", a.Type)
	}
	return cmd, nil
}

func NewJoinCommand(matchID, connID string) Command {
	return Command{Type: CmdJoin, MatchID: matchID, ConnID: connID}
}

func NewMoveCommand(matchID, connID string, mv core.Move) Command {
	return Command{Type: CmdMove, MatchID: matchID, ConnID: connID, Args: mv}
}

// NewDisconnectCommand removes connID from matchID, or from every match it is
// seated in when matchID is empty
func NewDisconnectCommand(matchID, connID string) Command {
	return Command{Type: CmdDisconnect, MatchID: matchID, ConnID: connID}
}

func NewTickCommand(matchID string, generation uint64) Command {
	return Command{Type: CmdTick, MatchID: matchID, Args: TickArgs{Generation: generation}}
}
