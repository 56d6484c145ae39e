package session

import "github.com/railvoice/roclink/internal/transport"

// Player is one tracked participant: their voice presence, their live UI
// session if any, and their call state. The two halves connect and
// disconnect independently; the registry reconciles them.
type Player struct {
	ID             string
	Session        transport.Session
	VoiceChannelID string
	IsConnected    bool
	InCall         bool
}

// PlayerView is the admin projection of a player.
type PlayerView struct {
	ID             string `json:"id"`
	VoiceChannelID string `json:"voiceChannelId,omitempty"`
	IsConnected    bool   `json:"isConnected"`
	InCall         bool   `json:"inCall"`
}

// InVoice reports whether the player has a tracked voice presence.
func (p *Player) InVoice() bool { return p.VoiceChannelID != "" }

// Send delivers an event to the player's session, if one is attached.
func (p *Player) Send(event string, payload any) {
	if p.Session == nil || !p.IsConnected {
		return
	}
	p.Session.Send(event, payload)
}

// View returns the admin projection.
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:             p.ID,
		VoiceChannelID: p.VoiceChannelID,
		IsConnected:    p.IsConnected,
		InCall:         p.InCall,
	}
}
