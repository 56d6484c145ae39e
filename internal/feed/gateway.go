// Package feed connects to simulation interface gateways over STOMP and
// turns their clock and train movement topics into state updates.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-stomp/stomp/v3"

	"github.com/railvoice/roclink/internal/model"
)

// StateSink receives what the feeds report. Implemented by the session
// registry.
type StateSink interface {
	SetGatewayState(simID string, state model.ConnectionState, errorMessage string)
	UpdateSimClock(simID string, clock model.ClockData)
}

// CredentialSource supplies decrypted feed logins. Implemented by the
// session registry.
type CredentialSource interface {
	GatewayCredentials(simID string) (username, password string, err error)
}

// client is one configured feed endpoint and, when active, its running
// consumer loop.
type client struct {
	host   model.Host
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the STOMP clients, one per configured host.
type Manager struct {
	sink   StateSink
	creds  CredentialSource
	trains *TrainDirectory
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

// NewManager creates a feed manager with no clients.
func NewManager(sink StateSink, creds CredentialSource, trains *TrainDirectory, logger *slog.Logger) *Manager {
	return &Manager{
		sink:    sink,
		creds:   creds,
		trains:  trains,
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// CreateClient registers or updates the endpoint configuration for a host.
// The client stays idle until activated.
func (m *Manager) CreateClient(host model.Host) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.clients[host.Sim]; ok {
		existing.host = host
		return
	}
	m.clients[host.Sim] = &client{host: host}
	m.logger.Debug("feed client created",
		slog.String("sim", host.Sim),
		slog.String("host", host.Host),
		slog.Int("port", host.InterfaceGateway.Port))
}

// ActivateClient starts the consumer loop for a host's feed. The loop runs
// until the client is deactivated or the connection fails; state changes
// are reported through the sink.
func (m *Manager) ActivateClient(ctx context.Context, simID string) {
	m.mu.Lock()
	c, ok := m.clients[simID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("activating unknown feed client", slog.String("sim", simID))
		return
	}
	if c.cancel != nil {
		// Already running.
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	host := c.host
	done := c.done
	m.mu.Unlock()

	m.sink.SetGatewayState(simID, model.GatewayConnecting, "")

	go func() {
		defer close(done)
		if err := m.consume(runCtx, host); err != nil && runCtx.Err() == nil {
			m.logger.Error("feed connection failed",
				slog.String("sim", simID), slog.String("error", err.Error()))
			m.sink.SetGatewayState(simID, model.GatewayError, err.Error())
		} else {
			m.sink.SetGatewayState(simID, model.GatewayDisconnected, "")
		}

		m.mu.Lock()
		if cur := m.clients[simID]; cur != nil && cur.done == done {
			cur.cancel = nil
			cur.done = nil
		}
		m.mu.Unlock()
	}()
}

// DeactivateClient stops a running consumer loop and waits for it to exit.
func (m *Manager) DeactivateClient(simID string) {
	m.mu.Lock()
	c, ok := m.clients[simID]
	if !ok || c.cancel == nil {
		m.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("feed client deactivated", slog.String("sim", simID))
}

// RemoveClient deactivates and forgets a host's client.
func (m *Manager) RemoveClient(simID string) {
	m.DeactivateClient(simID)
	m.mu.Lock()
	delete(m.clients, simID)
	m.mu.Unlock()
}

// consume dials the gateway, subscribes to the clock and train movement
// topics and pumps messages until the context is cancelled.
func (m *Manager) consume(ctx context.Context, host model.Host) error {
	addr := fmt.Sprintf("%s:%d", host.Host, host.InterfaceGateway.Port)

	var opts []func(*stomp.Conn) error
	if host.InterfaceGateway.HasCredentials() {
		username, password, err := m.creds.GatewayCredentials(host.Sim)
		if err != nil {
			return fmt.Errorf("loading feed credentials: %w", err)
		}
		opts = append(opts, stomp.ConnOpt.Login(username, password))
	}

	conn, err := stomp.Dial("tcp", addr, opts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			m.logger.Debug("feed disconnect", slog.String("error", err.Error()))
		}
	}()

	clockSub, err := conn.Subscribe(topicClock, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topicClock, err)
	}
	trainSub, err := conn.Subscribe(topicTrainMovement, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topicTrainMovement, err)
	}

	m.sink.SetGatewayState(host.Sim, model.GatewayConnected, "")
	m.logger.Info("feed connected",
		slog.String("sim", host.Sim), slog.String("addr", addr))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-clockSub.C:
			if !ok {
				return fmt.Errorf("clock subscription closed")
			}
			if msg.Err != nil {
				return fmt.Errorf("clock subscription: %w", msg.Err)
			}
			m.handleClock(host.Sim, msg.Body)
		case msg, ok := <-trainSub.C:
			if !ok {
				return fmt.Errorf("train subscription closed")
			}
			if msg.Err != nil {
				return fmt.Errorf("train subscription: %w", msg.Err)
			}
			m.handleTrainMovement(host.Sim, msg.Body)
		}
	}
}

func (m *Manager) handleClock(simID string, body []byte) {
	var msg clockMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		m.logger.Warn("unparseable clock message",
			slog.String("sim", simID), slog.String("error", err.Error()))
		return
	}
	if msg.Clock == nil {
		return
	}
	clock := model.ClockFromFeed(msg.Clock.Clock, msg.Clock.Interval, msg.Clock.Paused)
	m.sink.UpdateSimClock(msg.Clock.AreaID, clock)
}

func (m *Manager) handleTrainMovement(simID string, body []byte) {
	var msg trainMovementMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		m.logger.Warn("unparseable train movement message",
			slog.String("sim", simID), slog.String("error", err.Error()))
		return
	}
	if msg.TrainLocation == nil {
		// Delay reports and other movement traffic carry no location.
		return
	}
	m.trains.HandleTrainLocation(simID, *msg.TrainLocation)
}
