package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"chessroom/internal/server/core"
)

// Board is the piece placement of a FEN, indexed [rank 8..1][file a..h]
type Board struct {
	squares [8][8]byte
	turn    core.Side
}

// ParseFEN reads the placement and side to move of a FEN string
func ParseFEN(fen string) (*Board, error) {
	parts := strings.Fields(fen)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid FEN: expected at least 2 fields, got %d", len(parts))
	}

	ranks := strings.Split(parts[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("invalid FEN: expected 8 ranks")
	}

	b := &Board{}
	for r, rank := range ranks {
		file := 0
		for _, ch := range rank {
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			if file >= 8 {
				return nil, fmt.Errorf("invalid FEN: too many pieces in rank %d", 8-r)
			}
			b.squares[r][file] = byte(ch)
			file++
		}
		if file != 8 {
			return nil, fmt.Errorf("invalid FEN: rank %d has %d files", 8-r, file)
		}
	}

	turn, err := core.ParseSide(parts[1])
	if err != nil || turn == core.SideNone {
		return nil, fmt.Errorf("invalid FEN: turn must be 'w' or 'b'")
	}
	b.turn = turn
	return b, nil
}

func (b *Board) Turn() core.Side {
	return b.turn
}

// PieceAt returns the FEN letter on square, or 0 if empty or off board
func (b *Board) PieceAt(square string) byte {
	if len(square) != 2 || square[0] < 'a' || square[0] > 'h' || square[1] < '1' || square[1] > '8' {
		return 0
	}
	return b.squares['8'-square[1]][square[0]-'a']
}

// Render writes the board from the point of view of side, black at the bottom when side is black
func (b *Board) Render(w io.Writer, side core.Side) {
	files := "a b c d e f g h"
	ranks := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if side == core.SideB {
		files = "h g f e d c b a"
		ranks = []int{7, 6, 5, 4, 3, 2, 1, 0}
	}

	fmt.Fprintf(w, "  %s%s%s\n", Cyan, files, Reset)
	for _, r := range ranks {
		fmt.Fprintf(w, "%s%d%s ", Cyan, 8-r, Reset)
		for i := range 8 {
			f := i
			if side == core.SideB {
				f = 7 - i
			}
			switch piece := b.squares[r][f]; {
			case piece == 0:
				fmt.Fprint(w, ". ")
			case piece >= 'A' && piece <= 'Z':
				fmt.Fprintf(w, "%s%c%s ", Blue, piece, Reset)
			default:
				fmt.Fprintf(w, "%s%c%s ", Red, piece, Reset)
			}
		}
		fmt.Fprintf(w, "%s%d%s\n", Cyan, 8-r, Reset)
	}
	fmt.Fprintf(w, "  %s%s%s\n", Cyan, files, Reset)
}

// Clock formats a remaining time as m:ss
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Timers formats both clocks, marking the side to move
func Timers(t core.Timers, turn core.Side) string {
	mark := func(s core.Side) string {
		if s == turn {
			return "*"
		}
		return " "
	}
	return fmt.Sprintf("%sWhite %s  %sBlack %s", mark(core.SideA), Clock(t.White), mark(core.SideB), Clock(t.Black))
}
