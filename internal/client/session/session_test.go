package session

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"chessroom/internal/client/api"
	"chessroom/internal/server/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []core.Action
}

func (r *recordingSender) Send(a core.Action) error {
	r.sent = append(r.sent, a)
	return nil
}

func event(t *testing.T, typ core.EventType, matchID string, payload any) api.Event {
	t.Helper()
	ev := api.Event{Type: typ, MatchID: matchID}
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		ev.Payload = b
	}
	return ev
}

func TestSendStampsMatch(t *testing.T) {
	var out bytes.Buffer
	sender := &recordingSender{}
	s := New(&out, sender)

	assert.Error(t, s.Send(core.Action{Type: core.ActionResign}))
	assert.Empty(t, sender.sent)

	s.Joining("m1")
	require.NoError(t, s.Send(core.Action{Type: core.ActionResign}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "m1", sender.sent[0].MatchID)
}

func TestApplyFollowsMatch(t *testing.T) {
	var out bytes.Buffer
	s := New(&out, &recordingSender{})
	s.Joining("m1")

	timers := core.Timers{White: 8 * time.Minute, Black: 8 * time.Minute}
	require.NoError(t, s.Apply(event(t, core.EventRoomJoined, "m1", core.RoomJoined{Side: core.SideB, Participants: 2, Timers: timers})))
	require.NoError(t, s.Apply(event(t, core.EventGameStart, "m1", core.GameStart{FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Timers: timers})))

	snap := s.Snapshot()
	assert.Equal(t, core.SideB, snap.Side)
	assert.Equal(t, timers, snap.Timers)
	assert.Contains(t, out.String(), "Game started")

	after := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	require.NoError(t, s.Apply(event(t, core.EventMoveMade, "m1", core.MoveRecord{Side: core.SideA, From: "e2", To: "e4", SAN: "e4", UCI: "e2e4", FEN: after})))
	assert.Equal(t, after, s.Snapshot().FEN)
	assert.Contains(t, out.String(), "played e4")

	require.NoError(t, s.Apply(event(t, core.EventDrawOffer, "m1", core.SideNotice{Side: core.SideA})))
	assert.Equal(t, core.SideA, s.Snapshot().Offer)

	require.NoError(t, s.Apply(event(t, core.EventGameOver, "m1", core.GameOver{Winner: core.SideB, Reason: core.ReasonResignation})))
	snap = s.Snapshot()
	require.NotNil(t, snap.Ended)
	assert.Equal(t, core.ReasonResignation, snap.Ended.Reason)
	assert.Equal(t, core.SideNone, snap.Offer)
	assert.Contains(t, out.String(), "wins by resignation")
}

func TestApplyIgnoresOtherMatches(t *testing.T) {
	var out bytes.Buffer
	s := New(&out, &recordingSender{})
	s.Joining("m1")

	require.NoError(t, s.Apply(event(t, core.EventGameOver, "m2", core.GameOver{Reason: core.ReasonAbandoned})))
	assert.Nil(t, s.Snapshot().Ended)
	assert.Empty(t, out.String())
}

func TestApplyErrorEvent(t *testing.T) {
	var out bytes.Buffer
	s := New(&out, &recordingSender{})

	require.NoError(t, s.Apply(event(t, core.EventError, "", core.ErrorResponse{Error: "validation failed", Code: core.ErrInvalidRequest, Details: "text is required"})))
	assert.Contains(t, out.String(), core.ErrInvalidRequest)
	assert.Contains(t, out.String(), "text is required")

	assert.Error(t, s.Apply(api.Event{Type: core.EventGameStart, MatchID: "x"}))
}
