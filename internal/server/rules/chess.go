package rules

import (
	"fmt"
	"strings"

	"chessroom/internal/server/core"

	"github.com/corentings/chess/v2"
)

// StartingFEN is the canonical initial position
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Chess is the standard chess Engine
type Chess struct{}

func NewChess() *Chess {
	return &Chess{}
}

type chessPosition struct {
	game *chess.Game
}

func (p *chessPosition) FEN() string {
	return p.game.FEN()
}

func (p *chessPosition) Turn() core.Side {
	return sideOf(p.game.Position().Turn())
}

func (p *chessPosition) PGN() string {
	return p.game.String()
}

func sideOf(c chess.Color) core.Side {
	if c == chess.Black {
		return core.SideB
	}
	return core.SideA
}

func (e *Chess) NewPosition() Position {
	return &chessPosition{game: chess.NewGame()}
}

func (e *Chess) ParsePosition(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, fmt.Errorf("empty FEN")
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid FEN %q: %w", fen, err)
	}
	return &chessPosition{game: chess.NewGame(opt)}, nil
}

func (e *Chess) ApplyMove(pos Position, mv core.Move) (Position, *core.MoveRecord, error) {
	p, ok := pos.(*chessPosition)
	if !ok {
		return nil, nil, fmt.Errorf("foreign position type %T", pos)
	}

	uci := strings.ToLower(mv.UCI())
	if !isLegal(p.game, uci) {
		return nil, nil, ErrIllegalMove
	}

	before := p.game.Position()
	decoded, err := chess.UCINotation{}.Decode(before, uci)
	if err != nil {
		return nil, nil, ErrIllegalMove
	}
	san := chess.AlgebraicNotation{}.Encode(before, decoded)
	mover := sideOf(before.Turn())

	if err := p.game.Move(decoded, nil); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	return p, &core.MoveRecord{
		Side:      mover,
		From:      strings.ToLower(mv.From),
		To:        strings.ToLower(mv.To),
		Promotion: strings.ToLower(mv.Promotion),
		SAN:       san,
		UCI:       uci,
		FEN:       p.game.FEN(),
	}, nil
}

// isLegal matches the proposal against the generated legal moves so a
// malformed or pseudo-legal move never reaches the game
func isLegal(g *chess.Game, uci string) bool {
	for _, m := range g.ValidMoves() {
		if m.String() == uci {
			return true
		}
	}
	return false
}

func (e *Chess) TerminalStatus(pos Position) Terminal {
	p, ok := pos.(*chessPosition)
	if !ok {
		return Ongoing
	}
	g := p.game

	switch g.Method() {
	case chess.Checkmate:
		return Checkmate
	case chess.Stalemate:
		return Stalemate
	case chess.InsufficientMaterial:
		return InsufficientMaterial
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return Repetition
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return FiftyMoves
	}

	// Claimable draws end the match as soon as they become available
	for _, m := range g.EligibleDraws() {
		switch m {
		case chess.ThreefoldRepetition:
			return Repetition
		case chess.FiftyMoveRule:
			return FiftyMoves
		}
	}
	return Ongoing
}
