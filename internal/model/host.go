package model

import (
	"errors"
	"fmt"
)

// ConnectionState tracks an interface gateway's link to its simulation host.
type ConnectionState string

const (
	GatewayDisconnected ConnectionState = "disconnected"
	GatewayConnecting   ConnectionState = "connecting"
	GatewayConnected    ConnectionState = "connected"
	GatewayError        ConnectionState = "error"
)

// ErrInvalidHost is the base error for host configuration validation
// failures.
var ErrInvalidHost = errors.New("invalid host configuration")

// InterfaceGateway is the optional external data-feed endpoint of a host.
// Credentials are stored only as username plus ciphertext; plaintext
// passwords never persist.
type InterfaceGateway struct {
	Port              int             `json:"port"`
	Enabled           bool            `json:"enabled"`
	ConnectionState   ConnectionState `json:"connectionState,omitempty"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	Username          string          `json:"username,omitempty"`
	EncryptedPassword string          `json:"encryptedPassword,omitempty"`
}

// HasCredentials reports whether login credentials are configured.
func (g *InterfaceGateway) HasCredentials() bool {
	return g.Username != "" && g.EncryptedPassword != ""
}

// InterfaceGatewayView is the client-safe projection of a gateway: it
// exposes whether a password exists, never the ciphertext.
type InterfaceGatewayView struct {
	Port            int             `json:"port"`
	Enabled         bool            `json:"enabled"`
	ConnectionState ConnectionState `json:"connectionState"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	Username        string          `json:"username,omitempty"`
	HasPassword     bool            `json:"hasPassword"`
}

// HostView is the client-safe projection of a host.
type HostView struct {
	Sim              string               `json:"sim"`
	Host             string               `json:"host"`
	Port             int                  `json:"port,omitempty"`
	Channel          string               `json:"channel"`
	Enabled          bool                 `json:"enabled"`
	InterfaceGateway InterfaceGatewayView `json:"interfaceGateway"`
}

// Host is the per-simulation gateway configuration: which simulation to
// run, where its host lives, which voice channel it uses, and the optional
// interface gateway for the external train feed.
type Host struct {
	Sim              string           `json:"sim"`
	Host             string           `json:"host"`
	Port             int              `json:"port,omitempty"`
	Channel          string           `json:"channel"`
	Enabled          bool             `json:"enabled"`
	InterfaceGateway InterfaceGateway `json:"interfaceGateway"`
}

// Validate checks required fields and port ranges.
func (h *Host) Validate() error {
	if h.Sim == "" {
		return fmt.Errorf("%w: missing sim", ErrInvalidHost)
	}
	if h.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidHost)
	}
	if h.Channel == "" {
		return fmt.Errorf("%w: missing channel", ErrInvalidHost)
	}
	if h.Port != 0 && (h.Port < 1 || h.Port > 65535) {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidHost, h.Port)
	}
	if h.InterfaceGateway.Port < 1 || h.InterfaceGateway.Port > 65535 {
		return fmt.Errorf("%w: interface gateway port must be between 1 and 65535, got %d", ErrInvalidHost, h.InterfaceGateway.Port)
	}
	return nil
}

// Enable marks the host enabled.
func (h *Host) Enable() { h.Enabled = true }

// Disable marks the host disabled and drops the gateway with it.
func (h *Host) Disable() {
	h.Enabled = false
	h.DisableGateway()
}

// EnableGateway marks the gateway enabled and connecting.
func (h *Host) EnableGateway() {
	h.InterfaceGateway.Enabled = true
	h.InterfaceGateway.ConnectionState = GatewayConnecting
	h.InterfaceGateway.ErrorMessage = ""
}

// DisableGateway marks the gateway disabled and disconnected.
func (h *Host) DisableGateway() {
	h.InterfaceGateway.Enabled = false
	h.InterfaceGateway.ConnectionState = GatewayDisconnected
	h.InterfaceGateway.ErrorMessage = ""
}

// SetGatewayState records the gateway's connection state and error message.
func (h *Host) SetGatewayState(state ConnectionState, errorMessage string) {
	h.InterfaceGateway.ConnectionState = state
	h.InterfaceGateway.ErrorMessage = errorMessage
}

// Stored returns the host as persisted to disk. Gateways are always
// serialized disabled: after a restart they must be explicitly re-enabled.
func (h *Host) Stored() Host {
	stored := *h
	stored.InterfaceGateway.Enabled = false
	stored.InterfaceGateway.ConnectionState = ""
	stored.InterfaceGateway.ErrorMessage = ""
	return stored
}

// ClientView returns the host stripped of secret material.
func (h *Host) ClientView() HostView {
	state := h.InterfaceGateway.ConnectionState
	if state == "" {
		state = GatewayDisconnected
	}
	return HostView{
		Sim:     h.Sim,
		Host:    h.Host,
		Port:    h.Port,
		Channel: h.Channel,
		Enabled: h.Enabled,
		InterfaceGateway: InterfaceGatewayView{
			Port:            h.InterfaceGateway.Port,
			Enabled:         h.InterfaceGateway.Enabled,
			ConnectionState: state,
			ErrorMessage:    h.InterfaceGateway.ErrorMessage,
			Username:        h.InterfaceGateway.Username,
			HasPassword:     h.InterfaceGateway.EncryptedPassword != "",
		},
	}
}
