package core

import "fmt"

// Reason explains why a match reached a terminal status
type Reason string

const (
	ReasonCheckmate            Reason = "checkmate"
	ReasonTimeout              Reason = "timeout"
	ReasonResignation          Reason = "resignation"
	ReasonDrawAgreement        Reason = "draw-agreement"
	ReasonDrawRule             Reason = "draw-rule"
	ReasonOpponentDisconnected Reason = "opponent-disconnected"
	ReasonAbandoned            Reason = "abandoned"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonCheckmate, ReasonTimeout, ReasonResignation, ReasonDrawAgreement,
		ReasonDrawRule, ReasonOpponentDisconnected, ReasonAbandoned:
		return true
	}
	return false
}

// IsDraw reports whether the reason ends the match without a winner
func (r Reason) IsDraw() bool {
	return r == ReasonDrawAgreement || r == ReasonDrawRule || r == ReasonAbandoned
}

// Outcome is the payload of a terminal status
type Outcome struct {
	Reason Reason `json:"reason"`
	Winner Side   `json:"winner"`
	Detail string `json:"detail,omitempty"` // draw rule that applied, if any
}

// NewOutcome validates that the winner is consistent with the reason
func NewOutcome(reason Reason, winner Side) (Outcome, error) {
	if !reason.Valid() {
		return Outcome{}, fmt.Errorf("unknown reason: %q", reason)
	}
	if reason.IsDraw() && winner != SideNone {
		return Outcome{}, fmt.Errorf("reason %s cannot have a winner", reason)
	}
	if !reason.IsDraw() && !winner.Valid() {
		return Outcome{}, fmt.Errorf("reason %s requires a winner", reason)
	}
	return Outcome{Reason: reason, Winner: winner}, nil
}

type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseOngoing
	PhaseTerminal
)

// Status is Waiting, Ongoing or Terminal{Outcome}. The outcome is only
// meaningful when the phase is terminal.
type Status struct {
	phase   Phase
	outcome Outcome
}

func Waiting() Status { return Status{phase: PhaseWaiting} }

func Ongoing() Status { return Status{phase: PhaseOngoing} }

func Terminal(o Outcome) Status { return Status{phase: PhaseTerminal, outcome: o} }

func (s Status) Phase() Phase { return s.phase }

func (s Status) IsTerminal() bool { return s.phase == PhaseTerminal }

// Outcome returns the terminal outcome and whether the status is terminal
func (s Status) Outcome() (Outcome, bool) {
	return s.outcome, s.phase == PhaseTerminal
}

// String returns the persisted discriminant: "waiting", "ongoing" or the terminal reason
func (s Status) String() string {
	switch s.phase {
	case PhaseWaiting:
		return "waiting"
	case PhaseOngoing:
		return "ongoing"
	default:
		return string(s.outcome.Reason)
	}
}

// Open reports whether a persisted status string still accepts transitions
func Open(status string) bool {
	return status == "waiting" || status == "ongoing"
}

// ParseStatus rebuilds a Status from its persisted form
func ParseStatus(status, winner, detail string) (Status, error) {
	switch status {
	case "", "waiting":
		return Waiting(), nil
	case "ongoing":
		return Ongoing(), nil
	}

	side, err := ParseSide(winner)
	if err != nil {
		return Status{}, err
	}
	o, err := NewOutcome(Reason(status), side)
	if err != nil {
		return Status{}, err
	}
	o.Detail = detail
	return Terminal(o), nil
}
