package core

import (
	"fmt"
	"strings"
)

// Side is one of the two participant slots. SideA is the first joiner and plays white.
type Side byte

const (
	SideNone Side = 0
	SideA    Side = 'w'
	SideB    Side = 'b'
)

// SideAt maps a participant index to its side
func SideAt(i int) Side {
	switch i {
	case 0:
		return SideA
	case 1:
		return SideB
	default:
		return SideNone
	}
}

// Index returns the participant slot for the side, or -1 for SideNone
func (s Side) Index() int {
	switch s {
	case SideA:
		return 0
	case SideB:
		return 1
	default:
		return -1
	}
}

func (s Side) Opposite() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	default:
		return SideNone
	}
}

func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

func (s Side) String() string {
	if !s.Valid() {
		return ""
	}
	return string(s)
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	side, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide accepts the wire forms "w"/"b" as well as color names. Empty, "none"
// and "draw" all decode to SideNone.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "w", "white", "a":
		return SideA, nil
	case "b", "black":
		return SideB, nil
	case "", "none", "draw":
		return SideNone, nil
	default:
		return SideNone, fmt.Errorf("invalid side: %q", v)
	}
}
