package core

// ActionType names an inbound participant action
type ActionType string

const (
	ActionJoin       ActionType = "join"
	ActionMove       ActionType = "move"
	ActionResign     ActionType = "resign"
	ActionOfferDraw  ActionType = "offer-draw"
	ActionAcceptDraw ActionType = "accept-draw"
	ActionRejectDraw ActionType = "reject-draw"
	ActionChat       ActionType = "chat"
	ActionReportEnd  ActionType = "client-reported-end"
	ActionDisconnect ActionType = "disconnect"
)

// Action is the inbound message envelope sent by a participant over the transport
type Action struct {
	Type    ActionType `json:"type" validate:"required,oneof=join move resign offer-draw accept-draw reject-draw chat client-reported-end"`
	MatchID string     `json:"matchId" validate:"required,max=64,printascii"`
	Move    *Move      `json:"move,omitempty" validate:"required_if=Type move"`
	Side    Side       `json:"side,omitempty"`
	Text    string     `json:"text,omitempty" validate:"required_if=Type chat,max=500"`
	Winner  Side       `json:"winner,omitempty"`
	Reason  Reason     `json:"reason,omitempty" validate:"required_if=Type client-reported-end"`
}

// EventType names an outbound notification
type EventType string

const (
	EventRoomJoined           EventType = "room-joined"
	EventGameStart            EventType = "game-start"
	EventMoveMade             EventType = "move-made"
	EventTimerUpdate          EventType = "timer-update"
	EventGameOver             EventType = "game-over"
	EventOpponentResigned     EventType = "opponent-resigned"
	EventDrawOffer            EventType = "draw-offer"
	EventDrawAccepted         EventType = "draw-accepted"
	EventDrawRejected         EventType = "draw-rejected"
	EventOpponentDisconnected EventType = "opponent-disconnected"
	EventInvalidMove          EventType = "invalid-move"
	EventRoomFull             EventType = "room-full"
	EventChat                 EventType = "chat"
	EventError                EventType = "error"
)

// Event is the outbound message envelope
type Event struct {
	Type    EventType `json:"type"`
	MatchID string    `json:"matchId,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

type RoomJoined struct {
	Side         Side   `json:"side"`
	Participants int    `json:"participants"`
	Timers       Timers `json:"timers"`
}

type GameStart struct {
	FEN    string `json:"fen"`
	Timers Timers `json:"timers"`
}

type GameOver struct {
	Winner Side   `json:"winner"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type SideNotice struct {
	Side Side `json:"side"`
}

type InvalidMove struct {
	Move Move   `json:"move"`
	FEN  string `json:"fen"`
}

type ChatMessage struct {
	Side Side   `json:"side"`
	Text string `json:"text"`
}

// NewErrorEvent wraps an error code into an event
func NewErrorEvent(matchID, message, code string) Event {
	return Event{
		Type:    EventError,
		MatchID: matchID,
		Payload: ErrorResponse{Error: message, Code: code},
	}
}
