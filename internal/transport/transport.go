// Package transport defines the contract between the coordination engine
// and the realtime transport that carries events to UI sessions. The wire
// protocol itself lives outside this module; the engine only ever sees
// sessions it can send typed events to.
package transport

import "github.com/railvoice/roclink/internal/model"

// Session is one live UI connection.
type Session interface {
	// ID returns the transport-scoped session identifier.
	ID() string
	// Send delivers an event to the session. Delivery is best-effort; the
	// engine never blocks on a slow client.
	Send(event string, payload any)
}

// Outbound event names.
const (
	EventSessionAuthenticated = "sessionAuthenticated"
	EventGameStateChanged     = "gameStateChanged"
	EventPlayerPhonesChanged  = "playerPhonesChanged"
	EventCallQueueChanged     = "callQueueChanged"
	EventCallJoined           = "callJoined"
	EventCallEndedByPeer      = "callEndedByPeer"
	EventAdminStatusChanged   = "adminStatusChanged"
	EventPhonebookChanged     = "phonebookChanged"
)

// ErrCodeVoiceDisconnected tells a session its user has no tracked voice
// presence yet; the client should prompt the user to join voice.
const ErrCodeVoiceDisconnected = "VC_DISCONNECTED"

// SessionAuthenticated reports the outcome of a session registration.
type SessionAuthenticated struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CallQueueChanged carries a phone's full current queue view.
type CallQueueChanged struct {
	PhoneID string           `json:"phoneId"`
	Queue   []model.CallView `json:"queue"`
}

// CallJoined reports a successful (or failed) move into a call channel.
type CallJoined struct {
	OK bool `json:"ok"`
}

// CallEndedByPeer tells the remaining party that the other side hung up.
type CallEndedByPeer struct {
	OK bool `json:"ok"`
}

// PlayerPhonesChanged carries the phonebooks of all phones a player holds.
type PlayerPhonesChanged struct {
	Phones []model.PhoneBook `json:"phones"`
}
