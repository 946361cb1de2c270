// Package protocol is the websocket wire format of an estimation session.
//
// Client -> Server, always {"message_type": ..., "message": ...}:
//
//	vote:            message {estimate: number}
//	estimate:        message {estimate: number}   (manager only)
//	skip:            message ignored              (manager only)
//	start_timer:     message ignored              (manager only)
//	initialise_game: message ignored
//	update:          message ignored
//
// Server -> Client broadcast, {"type": message_type, ...}:
//
//	vote:            vote {id, estimate, game_session, user}
//	estimate:        estimate
//	skip:            (type only)
//	start_timer:     timer_started_at
//	initialise_game: votes [], users [], timer (null when unset)
//	update:          users []   (also sent on every join/leave)
//
// Server -> sender only: {"error": string}
package protocol
