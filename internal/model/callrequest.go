package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallType classifies how a call's receivers are chosen.
type CallType string

const (
	// CallP2P is a direct call to a single caller-chosen phone.
	CallP2P CallType = "p2p"
	// CallGroup is a call to a caller-chosen set of phones.
	CallGroup CallType = "group"
	// CallREC is an emergency broadcast whose receivers are derived from
	// topology rather than chosen by the caller.
	CallREC CallType = "rec"
)

// CallLevel is the urgency of a call.
type CallLevel string

const (
	LevelNormal    CallLevel = "normal"
	LevelUrgent    CallLevel = "urgent"
	LevelEmergency CallLevel = "emergency"
)

// CallStatus is a call's position in its state machine.
type CallStatus string

const (
	StatusOffered  CallStatus = "offered"
	StatusAccepted CallStatus = "accepted"
	StatusRejected CallStatus = "rejected"
	StatusEnded    CallStatus = "ended"
)

// ErrInvalidTransition is returned for a state change the call machine does
// not permit. The only valid edges are offered→accepted, offered→rejected
// and accepted→ended.
var ErrInvalidTransition = errors.New("invalid call status transition")

// ErrNotP2P is returned when a single-receiver accessor is used on a
// multi-receiver call.
var ErrNotP2P = errors.New("call is not a p2p call")

// CallView is the client-safe projection of a call, sent in queue updates.
type CallView struct {
	ID         string           `json:"id"`
	TimePlaced int64            `json:"timePlaced"`
	Type       CallType         `json:"type"`
	Level      CallLevel        `json:"level"`
	Status     CallStatus       `json:"status"`
	Sender     PhonebookEntry   `json:"sender"`
	Receivers  []PhonebookEntry `json:"receivers"`
}

// CallRequest is one call through the state machine
// offered→{accepted→ended, rejected}.
type CallRequest struct {
	id         string
	sender     *Phone
	receivers  []*Phone
	typ        CallType
	level      CallLevel
	status     CallStatus
	channel    string
	timePlaced time.Time
}

// NewCallRequest creates a call in the offered state with a fresh id.
func NewCallRequest(sender *Phone, receivers []*Phone, typ CallType, level CallLevel) *CallRequest {
	return &CallRequest{
		id:         uuid.NewString(),
		sender:     sender,
		receivers:  receivers,
		typ:        typ,
		level:      level,
		status:     StatusOffered,
		timePlaced: time.Now(),
	}
}

func (c *CallRequest) ID() string            { return c.id }
func (c *CallRequest) Sender() *Phone        { return c.sender }
func (c *CallRequest) Receivers() []*Phone   { return c.receivers }
func (c *CallRequest) Type() CallType        { return c.typ }
func (c *CallRequest) Level() CallLevel      { return c.level }
func (c *CallRequest) Status() CallStatus    { return c.status }
func (c *CallRequest) TimePlaced() time.Time { return c.timePlaced }

// Receiver returns the single receiver of a p2p call.
func (c *CallRequest) Receiver() (*Phone, error) {
	if c.typ != CallP2P || len(c.receivers) != 1 {
		return nil, ErrNotP2P
	}
	return c.receivers[0], nil
}

// Channel returns the reserved call channel id, or "" if none is reserved.
func (c *CallRequest) Channel() string { return c.channel }

// SetChannel records the reserved call channel.
func (c *CallRequest) SetChannel(channelID string) { c.channel = channelID }

// ClearChannel drops the channel reservation record.
func (c *CallRequest) ClearChannel() { c.channel = "" }

// Transition moves the call to the given status, enforcing the machine's
// edges.
func (c *CallRequest) Transition(to CallStatus) error {
	valid := false
	switch c.status {
	case StatusOffered:
		valid = to == StatusAccepted || to == StatusRejected
	case StatusAccepted:
		valid = to == StatusEnded
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.status, to)
	}
	c.status = to
	return nil
}

// IsForPhone reports whether the phone is one of the call's receivers.
func (c *CallRequest) IsForPhone(p *Phone) bool {
	for _, r := range c.receivers {
		if r.ID() == p.ID() {
			return true
		}
	}
	return false
}

// IsFromPhone reports whether the phone placed the call.
func (c *CallRequest) IsFromPhone(p *Phone) bool {
	return c.sender.ID() == p.ID()
}

// HasReceiverOwner reports whether any receiver is owned by the given player.
func (c *CallRequest) HasReceiverOwner(playerID string) bool {
	for _, r := range c.receivers {
		if r.Owner() == playerID {
			return true
		}
	}
	return false
}

// View returns the client-safe projection of the call.
func (c *CallRequest) View() CallView {
	receivers := make([]PhonebookEntry, len(c.receivers))
	for i, r := range c.receivers {
		receivers[i] = r.Entry()
	}
	return CallView{
		ID:         c.id,
		TimePlaced: c.timePlaced.UnixMilli(),
		Type:       c.typ,
		Level:      c.level,
		Status:     c.status,
		Sender:     c.sender.Entry(),
		Receivers:  receivers,
	}
}
