// Package call runs the call state machine: offers, acceptance into an
// exclusive voice channel, rejection and hangup. Calls move through
// offered, accepted and ended or rejected; terminal calls are archived and
// surfaced in queue views for a short window.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/railvoice/roclink/internal/model"
	"github.com/railvoice/roclink/internal/transport"
	"github.com/railvoice/roclink/internal/voice"
)

// Sentinel errors surfaced to transport handlers.
var (
	ErrCallNotFound        = errors.New("call not found")
	ErrNotACallParty       = errors.New("player is not a party to this call")
	ErrSenderUnassigned    = errors.New("sender phone is not assigned to a player")
	ErrReceiverUnassigned  = errors.New("receiver phone is not assigned to a player")
	ErrSelfCall            = errors.New("a player cannot call themselves")
	ErrNoRecipients        = errors.New("no recipients for emergency call")
	ErrNoChannelsAvailable = errors.New("no call channels available")
	ErrMoveFailed          = errors.New("failed to move player into call channel")
)

// pastCallWindow is how many archived calls a phone's queue view includes.
const pastCallWindow = 10

// maxArchivedCalls bounds the terminal-call history kept in memory.
const maxArchivedCalls = 200

// PhoneDirectory is the slice of the phone manager the call engine needs.
type PhoneDirectory interface {
	Phone(phoneID string) (*model.Phone, error)
	RECRecipients(sender *model.Phone) ([]*model.Phone, error)
}

// PlayerDirectory is the slice of the session registry the call engine
// needs: where to restore players after a call, and how to reach them.
type PlayerDirectory interface {
	// VoiceChannel returns the player's pre-call voice channel, or false if
	// the player has no tracked voice presence.
	VoiceChannel(playerID string) (string, bool)
	// SetInCall flags the player as being in an active call.
	SetInCall(playerID string, inCall bool)
	// Send delivers an event to all of the player's sessions.
	Send(playerID string, event string, payload any)
}

// Manager owns every call in the system.
type Manager struct {
	phones  PhoneDirectory
	players PlayerDirectory
	voice   voice.Directory
	pool    *ChannelPool
	logger  *slog.Logger

	mu      sync.Mutex
	pending []*model.CallRequest
	ongoing []*model.CallRequest
	past    []*model.CallRequest
}

// NewManager creates a call manager over the given collaborators.
func NewManager(phones PhoneDirectory, players PlayerDirectory, vd voice.Directory, pool *ChannelPool, logger *slog.Logger) *Manager {
	return &Manager{
		phones:  phones,
		players: players,
		voice:   vd,
		pool:    pool,
		logger:  logger,
	}
}

// PlaceCall offers a direct call from one phone to another at the given
// urgency. Both phones must be assigned, and a player cannot ring a phone
// they hold themselves.
func (m *Manager) PlaceCall(senderPhoneID, receiverPhoneID string, level model.CallLevel) (*model.CallRequest, error) {
	sender, err := m.phones.Phone(senderPhoneID)
	if err != nil {
		return nil, err
	}
	if sender.Owner() == "" {
		return nil, fmt.Errorf("%w: %s", ErrSenderUnassigned, senderPhoneID)
	}
	receiver, err := m.phones.Phone(receiverPhoneID)
	if err != nil {
		return nil, err
	}
	if receiver.Owner() == "" {
		return nil, fmt.Errorf("%w: %s", ErrReceiverUnassigned, receiverPhoneID)
	}
	if receiver.Owner() == sender.Owner() {
		return nil, fmt.Errorf("%w: %s", ErrSelfCall, sender.Owner())
	}
	if level == "" {
		level = model.LevelNormal
	}

	return m.offer(model.NewCallRequest(sender, []*model.Phone{receiver}, model.CallP2P, level)), nil
}

// PlaceGroupCall offers a call to a caller-chosen set of phones. Receivers
// the caller holds themselves are dropped; the call needs at least one
// receiver left.
func (m *Manager) PlaceGroupCall(senderPhoneID string, receiverPhoneIDs []string, level model.CallLevel) (*model.CallRequest, error) {
	sender, err := m.phones.Phone(senderPhoneID)
	if err != nil {
		return nil, err
	}
	if sender.Owner() == "" {
		return nil, fmt.Errorf("%w: %s", ErrSenderUnassigned, senderPhoneID)
	}

	var receivers []*model.Phone
	for _, id := range receiverPhoneIDs {
		receiver, err := m.phones.Phone(id)
		if err != nil {
			return nil, err
		}
		if receiver.Owner() == "" || receiver.Owner() == sender.Owner() {
			continue
		}
		receivers = append(receivers, receiver)
	}
	if len(receivers) == 0 {
		return nil, ErrNoRecipients
	}
	if level == "" {
		level = model.LevelNormal
	}

	return m.offer(model.NewCallRequest(sender, receivers, model.CallGroup, level)), nil
}

// PlaceRECCall offers a railway emergency call. Receivers come from
// topology, not the caller, and the urgency is always emergency.
func (m *Manager) PlaceRECCall(senderPhoneID string) (*model.CallRequest, error) {
	sender, err := m.phones.Phone(senderPhoneID)
	if err != nil {
		return nil, err
	}
	if sender.Owner() == "" {
		return nil, fmt.Errorf("%w: %s", ErrSenderUnassigned, senderPhoneID)
	}
	receivers, err := m.phones.RECRecipients(sender)
	if err != nil {
		return nil, err
	}
	if len(receivers) == 0 {
		return nil, ErrNoRecipients
	}

	return m.offer(model.NewCallRequest(sender, receivers, model.CallREC, model.LevelEmergency)), nil
}

func (m *Manager) offer(call *model.CallRequest) *model.CallRequest {
	m.mu.Lock()
	m.pending = append(m.pending, call)
	m.mu.Unlock()

	m.logger.Info("call placed",
		slog.String("call", call.ID()),
		slog.String("type", string(call.Type())),
		slog.String("level", string(call.Level())),
		slog.String("sender", call.Sender().ID()))

	m.pushUpdatesForCall(call)
	return call
}

// AcceptCall moves an offered call to accepted: it reserves an exclusive
// channel, moves the accepting player and then the caller into it, and
// commits the transition. Any failure along the way releases the channel
// and restores the accepter, leaving the call offered.
func (m *Manager) AcceptCall(ctx context.Context, playerID, callID string) error {
	m.mu.Lock()
	call := findCall(m.pending, callID)
	if call == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	if !call.HasReceiverOwner(playerID) {
		m.mu.Unlock()
		m.logger.Warn("accept from a player not on the call",
			slog.String("call", callID), slog.String("player", playerID))
		return fmt.Errorf("%w: %s", ErrNotACallParty, playerID)
	}
	senderOwner := call.Sender().Owner()
	m.mu.Unlock()

	channelID, ok := m.pool.TryReserve()
	if !ok {
		m.logger.Warn("call channel pool exhausted", slog.String("call", callID))
		return ErrNoChannelsAvailable
	}

	// Mark both parties in-call before any move. Voice presence updates
	// triggered by the moves must not overwrite the channels they return
	// to when the call ends.
	m.players.SetInCall(playerID, true)
	m.players.SetInCall(senderOwner, true)
	abort := func(restore ...string) {
		for _, id := range restore {
			m.restorePlayer(ctx, id)
		}
		m.players.SetInCall(playerID, false)
		m.players.SetInCall(senderOwner, false)
		m.pool.Release(channelID)
	}

	// Move the accepter first. The call stays offered until both moves
	// land, so a failure here only costs the reservation.
	if !m.voice.MoveToChannel(ctx, playerID, channelID) {
		abort()
		return fmt.Errorf("%w: %s", ErrMoveFailed, playerID)
	}

	m.mu.Lock()
	if call.Status() != model.StatusOffered {
		m.mu.Unlock()
		abort(playerID)
		return fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	m.mu.Unlock()

	if !m.voice.MoveToChannel(ctx, senderOwner, channelID) {
		abort(playerID)
		return fmt.Errorf("%w: %s", ErrMoveFailed, senderOwner)
	}

	m.mu.Lock()
	if call.Status() != model.StatusOffered {
		m.mu.Unlock()
		abort(playerID, senderOwner)
		return fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	if err := call.Transition(model.StatusAccepted); err != nil {
		m.mu.Unlock()
		abort(playerID, senderOwner)
		return err
	}
	call.SetChannel(channelID)
	m.pending = removeCall(m.pending, callID)
	m.ongoing = append(m.ongoing, call)
	m.mu.Unlock()

	m.pool.MarkInUse(channelID)
	m.players.Send(playerID, transport.EventCallJoined, transport.CallJoined{OK: true})
	m.players.Send(senderOwner, transport.EventCallJoined, transport.CallJoined{OK: true})

	m.logger.Info("call accepted",
		slog.String("call", callID),
		slog.String("channel", channelID),
		slog.String("accepter", playerID))

	m.pushUpdatesForCall(call)
	return nil
}

// RejectCall declines an offered call. Only a receiver's owner may reject.
func (m *Manager) RejectCall(playerID, callID string) error {
	m.mu.Lock()
	call := findCall(m.pending, callID)
	if call == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	if !call.HasReceiverOwner(playerID) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotACallParty, playerID)
	}
	if err := call.Transition(model.StatusRejected); err != nil {
		m.mu.Unlock()
		return err
	}
	m.pending = removeCall(m.pending, callID)
	m.archive(call)
	m.mu.Unlock()

	m.logger.Info("call rejected",
		slog.String("call", callID), slog.String("player", playerID))

	m.pushUpdatesForCall(call)
	return nil
}

// LeaveCall hangs up an accepted call. Both parties are restored to their
// pre-call channels, the channel returns to the pool and the other side is
// told the peer hung up.
func (m *Manager) LeaveCall(ctx context.Context, playerID, callID string) error {
	m.mu.Lock()
	call := findCall(m.ongoing, callID)
	if call == nil {
		m.mu.Unlock()
		m.logger.Info("leave for a call already terminated", slog.String("call", callID))
		return fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	senderOwner := call.Sender().Owner()
	if senderOwner != playerID && !call.HasReceiverOwner(playerID) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotACallParty, playerID)
	}
	if err := call.Transition(model.StatusEnded); err != nil {
		m.mu.Unlock()
		return err
	}
	channelID := call.Channel()
	call.ClearChannel()
	m.ongoing = removeCall(m.ongoing, callID)
	m.archive(call)

	parties := map[string]bool{senderOwner: true}
	for _, r := range call.Receivers() {
		if owner := r.Owner(); owner != "" {
			parties[owner] = true
		}
	}
	m.mu.Unlock()

	for party := range parties {
		m.restorePlayer(ctx, party)
		m.players.SetInCall(party, false)
		if party != playerID {
			m.players.Send(party, transport.EventCallEndedByPeer, transport.CallEndedByPeer{OK: true})
		}
	}
	if channelID != "" {
		m.pool.Release(channelID)
	}

	m.logger.Info("call ended",
		slog.String("call", callID),
		slog.String("player", playerID),
		slog.String("channel", channelID))

	m.pushUpdatesForCall(call)
	return nil
}

// QueueForPhone returns the calls a phone should display: everything
// pending or ongoing that involves it, plus its most recent archived calls.
func (m *Manager) QueueForPhone(p *model.Phone) []model.CallView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueForPhone(p)
}

// PushQueueUpdate recomputes and sends a phone's queue to its owner.
func (m *Manager) PushQueueUpdate(p *model.Phone) {
	owner := p.Owner()
	if owner == "" {
		return
	}
	m.mu.Lock()
	queue := m.queueForPhone(p)
	m.mu.Unlock()

	m.players.Send(owner, transport.EventCallQueueChanged, transport.CallQueueChanged{
		PhoneID: p.ID(),
		Queue:   queue,
	})
}

// Counts returns the number of pending and ongoing calls, for status views
// and metrics.
func (m *Manager) Counts() (pending, ongoing int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending), len(m.ongoing)
}

// ChannelCounts reports the channel pool's occupancy.
func (m *Manager) ChannelCounts() (total, reserved, inUse int) {
	return m.pool.Counts()
}

// EndCallsForPlayer force-ends every ongoing call the player is party to,
// used when a player disconnects from voice entirely.
func (m *Manager) EndCallsForPlayer(ctx context.Context, playerID string) {
	m.mu.Lock()
	var involved []*model.CallRequest
	for _, call := range m.ongoing {
		if call.Sender().Owner() == playerID || call.HasReceiverOwner(playerID) {
			involved = append(involved, call)
		}
	}
	m.mu.Unlock()

	for _, call := range involved {
		if err := m.LeaveCall(ctx, playerID, call.ID()); err != nil {
			m.logger.Warn("force-ending call failed",
				slog.String("call", call.ID()), slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) queueForPhone(p *model.Phone) []model.CallView {
	var out []model.CallView
	for _, call := range m.pending {
		if call.IsForPhone(p) || call.IsFromPhone(p) {
			out = append(out, call.View())
		}
	}
	for _, call := range m.ongoing {
		if call.IsForPhone(p) || call.IsFromPhone(p) {
			out = append(out, call.View())
		}
	}

	var archived []model.CallView
	for _, call := range m.past {
		if call.IsForPhone(p) || call.IsFromPhone(p) {
			archived = append(archived, call.View())
		}
	}
	if len(archived) > pastCallWindow {
		archived = archived[len(archived)-pastCallWindow:]
	}
	return append(out, archived...)
}

// archive appends a terminal call to the history, dropping the oldest
// entries past the retention cap. Callers must hold m.mu.
func (m *Manager) archive(call *model.CallRequest) {
	m.past = append(m.past, call)
	if len(m.past) > maxArchivedCalls {
		m.past = m.past[len(m.past)-maxArchivedCalls:]
	}
}

// restorePlayer moves a player back to their pre-call channel.
func (m *Manager) restorePlayer(ctx context.Context, playerID string) {
	channelID, ok := m.players.VoiceChannel(playerID)
	if !ok || channelID == "" {
		m.logger.Warn("no channel to restore player to", slog.String("player", playerID))
		return
	}
	if !m.voice.MoveToChannel(ctx, playerID, channelID) {
		m.logger.Warn("failed to restore player to channel",
			slog.String("player", playerID), slog.String("channel", channelID))
	}
}

// pushUpdatesForCall sends queue updates to the sender and every receiver.
func (m *Manager) pushUpdatesForCall(call *model.CallRequest) {
	m.PushQueueUpdate(call.Sender())
	for _, r := range call.Receivers() {
		m.PushQueueUpdate(r)
	}
}

func findCall(calls []*model.CallRequest, callID string) *model.CallRequest {
	for _, c := range calls {
		if c.ID() == callID {
			return c
		}
	}
	return nil
}

func removeCall(calls []*model.CallRequest, callID string) []*model.CallRequest {
	out := calls[:0]
	for _, c := range calls {
		if c.ID() != callID {
			out = append(out, c)
		}
	}
	return out
}
