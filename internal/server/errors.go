package server

// ErrorKind is the wire-visible error taxonomy. These are
// kinds, not Go error types: domain errors stay plain wrapped errors
// inside each package and are mapped to a kind only at the session
// boundary, where they become Error/KickedFromMatch events.
type ErrorKind string

const (
	// KindInvalidCommand is a client-side syntactic error; shown in-chat,
	// session continues.
	KindInvalidCommand ErrorKind = "InvalidCommand"
	// KindRuleViolation rejects an illegal or out-of-order turn; the
	// offending turn is dropped, session continues.
	KindRuleViolation ErrorKind = "RuleViolation"
	// KindIgnorable is a recoverable server-side condition (e.g. joining a
	// match that just ended); the client shows a dialog and continues.
	KindIgnorable ErrorKind = "Ignorable"
	// KindKickedFromMatch severs the match binding; the server closes the
	// socket and the client returns to the join menu.
	KindKickedFromMatch ErrorKind = "KickedFromMatch"
	// KindFatal is an unrecoverable core invariant violation; only the
	// affected match is dropped, never the whole server.
	KindFatal ErrorKind = "Fatal"
	// KindProtocolMismatch means the client was built against a different
	// protocol version; fatal for that client.
	KindProtocolMismatch ErrorKind = "ProtocolMismatch"
)
