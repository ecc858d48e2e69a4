package core

// Move is a move proposal in coordinate form
type Move struct {
	From      string `json:"from" validate:"required,len=2"`
	To        string `json:"to" validate:"required,len=2"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
}

// UCI returns the move in UCI long algebraic form, e.g. e2e4 or a7a8q
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}

// MoveRecord is an accepted move as reported by the rules engine
type MoveRecord struct {
	Side      Side   `json:"color"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	FEN       string `json:"fen"` // position after the move
}
