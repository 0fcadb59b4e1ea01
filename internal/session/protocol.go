// Package session implements ClientSession: one WebSocket's sequence
// numbering, outgoing-event buffer, hot-reconnect replay window, and the
// wire protocol's tagged-union event types.
//
// Events are buffered per session rather than broadcast per room: hot
// reconnect requires replaying each client's own gap, not just the
// latest state.
package session

import "github.com/amatveiakin/bughouse-chess/internal/force"

// ClientEventKind discriminates ClientEvent's active payload field: a
// Kind string plus exactly one non-nil payload pointer.
type ClientEventKind string

const (
	EvJoin                ClientEventKind = "Join"
	EvNewMatch            ClientEventKind = "NewMatch"
	EvLeave               ClientEventKind = "Leave"
	EvSetFaction          ClientEventKind = "SetFaction"
	EvToggleReady         ClientEventKind = "ToggleReady"
	EvMakeTurn            ClientEventKind = "MakeTurn"
	EvCancelPreturn       ClientEventKind = "CancelPreturn"
	EvResign              ClientEventKind = "Resign"
	EvChangeFactionInGame ClientEventKind = "ChangeFactionInGame"
	EvToggleSharedWayback ClientEventKind = "ToggleSharedWayback"
	EvWaybackTo           ClientEventKind = "WaybackTo"
	EvSendChat            ClientEventKind = "SendChat"
	EvPing                ClientEventKind = "Ping"
	EvHotReconnect        ClientEventKind = "HotReconnect"
	EvRequestExport       ClientEventKind = "RequestExport"
	EvReportError         ClientEventKind = "ReportError"
)

// ClientEvent is one inbound message. ClientSeq must increase strictly
// within one socket; the server drops duplicates and out-of-order
// retries.
type ClientEvent struct {
	ClientSeq uint32          `json:"client_seq"`
	Kind      ClientEventKind `json:"kind"`

	Join                *JoinPayload          `json:"join,omitempty"`
	NewMatch            *NewMatchPayload      `json:"new_match,omitempty"`
	SetFaction          *SetFactionPayload    `json:"set_faction,omitempty"`
	MakeTurn            *MakeTurnPayload      `json:"make_turn,omitempty"`
	CancelPreturn       *CancelPreturnPayload `json:"cancel_preturn,omitempty"`
	ChangeFactionInGame *SetFactionPayload    `json:"change_faction_in_game,omitempty"`
	WaybackTo           *WaybackToPayload     `json:"wayback_to,omitempty"`
	SendChat            *SendChatPayload      `json:"send_chat,omitempty"`
	Ping                *PingPayload          `json:"ping,omitempty"`
	HotReconnect        *HotReconnectPayload  `json:"hot_reconnect,omitempty"`
	ReportError         *ReportErrorPayload   `json:"report_error,omitempty"`
}

type JoinPayload struct {
	MatchCode string `json:"match_id"`
	Name      string `json:"name"`
}

type NewMatchPayload struct {
	RulesJSON []byte `json:"rules"`
}

type SetFactionPayload struct {
	Observer bool        `json:"observer,omitempty"`
	Team     *force.Team `json:"team,omitempty"`
	Random   bool        `json:"random,omitempty"`
}

type MakeTurnPayload struct {
	Board force.BoardID `json:"board"`
	Turn  []byte        `json:"turn"`
}

type CancelPreturnPayload struct {
	Board force.BoardID `json:"board"`
}

type WaybackToPayload struct {
	TurnIndex int `json:"turn_index"`
}

type SendChatPayload struct {
	Text string `json:"text"`
}

type PingPayload struct {
	Seq uint32 `json:"seq"`
}

type HotReconnectPayload struct {
	LastServerSeq uint32 `json:"last_server_seq"`
}

type ReportErrorPayload struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ServerEventKind discriminates ServerEvent the same way ClientEventKind
// does for inbound messages.
type ServerEventKind string

const (
	EvWelcome           ServerEventKind = "Welcome"
	EvMatchJoined       ServerEventKind = "MatchJoined"
	EvMatchUpdated      ServerEventKind = "MatchUpdated"
	EvGameStarted       ServerEventKind = "GameStarted"
	EvTurnMade          ServerEventKind = "TurnMade"
	EvGameOver          ServerEventKind = "GameOver"
	EvChatMessage       ServerEventKind = "ChatMessage"
	EvPong              ServerEventKind = "Pong"
	EvSessionUpdated    ServerEventKind = "SessionUpdated"
	EvKickedFromMatch   ServerEventKind = "KickedFromMatch"
	EvError             ServerEventKind = "Error"
	EvExportReady       ServerEventKind = "ExportReady"
	EvArchiveGameLoaded ServerEventKind = "ArchiveGameLoaded"
	EvLobbyCountdown    ServerEventKind = "LobbyCountdown"
)

// ServerEvent is one outbound message, numbered by the receiving session's
// monotonic ServerSeq counter.
type ServerEvent struct {
	ServerSeq uint32          `json:"server_seq"`
	Kind      ServerEventKind `json:"kind"`

	Welcome           *WelcomePayload         `json:"welcome,omitempty"`
	MatchJoined       *MatchSnapshotPayload   `json:"match_joined,omitempty"`
	MatchUpdated      *MatchDeltaPayload      `json:"match_updated,omitempty"`
	GameStarted       *MatchSnapshotPayload   `json:"game_started,omitempty"`
	TurnMade          *TurnMadePayload        `json:"turn_made,omitempty"`
	GameOver          *GameOverPayload        `json:"game_over,omitempty"`
	ChatMessage       *ChatMessagePayload     `json:"chat_message,omitempty"`
	Pong              *PongPayload            `json:"pong,omitempty"`
	SessionUpdated    *SessionUpdatedPayload  `json:"session_updated,omitempty"`
	KickedFromMatch   *KickedFromMatchPayload `json:"kicked_from_match,omitempty"`
	Error             *ErrorPayload           `json:"error,omitempty"`
	ExportReady       *ExportReadyPayload     `json:"export_ready,omitempty"`
	ArchiveGameLoaded *MatchSnapshotPayload   `json:"archive_game_loaded,omitempty"`
	LobbyCountdown    *LobbyCountdownPayload  `json:"lobby_countdown,omitempty"`
}

type WelcomePayload struct {
	ServerVersion string `json:"server_version"`
	ParticipantID string `json:"identity"`
	// ReconnectToken is presented back as ?reconnect= on the next socket
	// so the same ParticipantID re-binds without re-joining.
	ReconnectToken string `json:"reconnect_token,omitempty"`
}

// MatchSnapshotPayload carries opaque, already-serialized match/game state
// (built by internal/server from the authoritative Match) so this package
// stays free of a dependency on internal/match.
type MatchSnapshotPayload struct {
	Snapshot []byte `json:"snapshot"`
}

type MatchDeltaPayload struct {
	Delta []byte `json:"delta"`
}

type ClockReading struct {
	RemainingMillis          int32  `json:"remaining_millis"`
	TickingSinceOffsetMillis *int32 `json:"ticking_since_offset_millis,omitempty"`
}

type TurnMadePayload struct {
	Board     force.BoardID                `json:"board"`
	Turn      []byte                       `json:"turn"`
	TurnIndex int                          `json:"turn_index"`
	Clocks    map[force.Force]ClockReading `json:"clocks"`
}

type GameOverPayload struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

type ChatMessagePayload struct {
	From string `json:"from"`
	Text string `json:"text"`
}

type PongPayload struct {
	Seq uint32 `json:"seq"`
}

type SessionUpdatedPayload struct {
	AckClientSeq uint32 `json:"ack_client_seq"`
}

type KickedFromMatchPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type ExportReadyPayload struct {
	Content string `json:"content"`
}

type LobbyCountdownPayload struct {
	SecondsLeft *int `json:"seconds_left_or_null"`
}
