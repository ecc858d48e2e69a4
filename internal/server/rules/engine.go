// Package rules defines the rules engine the match session delegates move
// legality and end-of-game detection to.
package rules

import (
	"errors"

	"chessroom/internal/server/core"
)

// ErrIllegalMove is returned by ApplyMove when the engine rejects a move
var ErrIllegalMove = errors.New("illegal move")

// Terminal is the end-of-game status of a position
type Terminal int

const (
	Ongoing Terminal = iota
	Checkmate
	Stalemate
	Repetition
	InsufficientMaterial
	FiftyMoves
)

func (t Terminal) String() string {
	switch t {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case Repetition:
		return "repetition"
	case InsufficientMaterial:
		return "insufficient-material"
	case FiftyMoves:
		return "fifty-moves"
	default:
		return "ongoing"
	}
}

// Position is an opaque board state owned by an Engine
type Position interface {
	FEN() string
	Turn() core.Side
	PGN() string
}

// Engine validates and applies moves. A rejected move leaves the position untouched;
// an accepted move may reuse the position passed in.
type Engine interface {
	NewPosition() Position
	ParsePosition(fen string) (Position, error)
	ApplyMove(pos Position, mv core.Move) (Position, *core.MoveRecord, error)
	TerminalStatus(pos Position) Terminal
}
