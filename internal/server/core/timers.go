package core

import (
	"encoding/json"
	"time"
)

// Timers holds the remaining clock time of both sides
type Timers struct {
	White time.Duration
	Black time.Duration
}

// Get returns the remaining time of a side
func (t Timers) Get(s Side) time.Duration {
	if s == SideB {
		return t.Black
	}
	return t.White
}

// Set replaces the remaining time of a side
func (t *Timers) Set(s Side, d time.Duration) {
	if s == SideB {
		t.Black = d
		return
	}
	t.White = d
}

func (t Timers) IsZero() bool {
	return t.White == 0 && t.Black == 0
}

type timersJSON struct {
	White float64 `json:"white"`
	Black float64 `json:"black"`
}

// MarshalJSON encodes both sides in seconds, the unit the clients count down in
func (t Timers) MarshalJSON() ([]byte, error) {
	return json.Marshal(timersJSON{White: t.White.Seconds(), Black: t.Black.Seconds()})
}

func (t *Timers) UnmarshalJSON(b []byte) error {
	var v timersJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	t.White = time.Duration(v.White * float64(time.Second))
	t.Black = time.Duration(v.Black * float64(time.Second))
	return nil
}
