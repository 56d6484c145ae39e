// Package voice abstracts the voice backend: which channel a user sits in
// and the ability to move users between channels. The engine treats the
// backend as best-effort; a failed move is reported, never fatal.
package voice

import "context"

// Channel is a voice channel the engine may move players into.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory is the voice backend as seen by the engine.
type Directory interface {
	// CurrentChannel returns the id of the channel the user is connected
	// to, or "" if they are not in voice.
	CurrentChannel(ctx context.Context, userID string) (string, error)
	// MoveToChannel moves the user and reports whether the move succeeded.
	MoveToChannel(ctx context.Context, userID, channelID string) bool
	// CallChannels returns the ids of the exclusive call channel pool.
	CallChannels() []string
	// Channels lists all channels known to the backend.
	Channels() []Channel
}

// Static is an in-memory Directory used in tests and for offline boots
// where no voice backend is configured. Moves always succeed and are
// recorded so callers can observe them.
type Static struct {
	callChannels []string
	channels     []Channel
	presence     map[string]string
}

// NewStatic builds a Static directory with the given call channel pool.
func NewStatic(callChannels []string) *Static {
	channels := make([]Channel, len(callChannels))
	for i, id := range callChannels {
		channels[i] = Channel{ID: id, Name: id}
	}
	return &Static{
		callChannels: callChannels,
		channels:     channels,
		presence:     make(map[string]string),
	}
}

// SetPresence records a user's current channel.
func (s *Static) SetPresence(userID, channelID string) {
	s.presence[userID] = channelID
}

func (s *Static) CurrentChannel(_ context.Context, userID string) (string, error) {
	return s.presence[userID], nil
}

func (s *Static) MoveToChannel(_ context.Context, userID, channelID string) bool {
	s.presence[userID] = channelID
	return true
}

func (s *Static) CallChannels() []string { return s.callChannels }

func (s *Static) Channels() []Channel { return s.channels }
