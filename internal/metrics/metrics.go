package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/railvoice/roclink/internal/model"
)

// PlayerStatsProvider exposes player registry totals.
type PlayerStatsProvider interface {
	PlayerCounts() (total, connected, inVoice, inCall int)
	ActiveSimulationCount() int
	GatewayStates() map[string]model.ConnectionState
}

// PhoneStatsProvider exposes phone directory totals by type.
type PhoneStatsProvider interface {
	PhoneCount() map[model.PhoneType]int
}

// CallStatsProvider exposes call engine totals.
type CallStatsProvider interface {
	Counts() (pending, ongoing int)
	ChannelCounts() (total, reserved, inUse int)
}

// TrainStatsProvider exposes the tracked train count.
type TrainStatsProvider interface {
	Count() int
}

// Collector is a prometheus.Collector that gathers ROCLink metrics at
// scrape time.
type Collector struct {
	players   PlayerStatsProvider
	phones    PhoneStatsProvider
	calls     CallStatsProvider
	trains    TrainStatsProvider
	startTime time.Time

	// Metric descriptors.
	playersDesc     *prometheus.Desc
	simulationsDesc *prometheus.Desc
	gatewayDesc     *prometheus.Desc
	phonesDesc      *prometheus.Desc
	callsDesc       *prometheus.Desc
	channelsDesc    *prometheus.Desc
	trainsDesc      *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(
	players PlayerStatsProvider,
	phones PhoneStatsProvider,
	calls CallStatsProvider,
	trains TrainStatsProvider,
	startTime time.Time,
) *Collector {
	return &Collector{
		players:   players,
		phones:    phones,
		calls:     calls,
		trains:    trains,
		startTime: startTime,

		playersDesc: prometheus.NewDesc(
			"roclink_players",
			"Tracked players by state",
			[]string{"state"}, nil,
		),
		simulationsDesc: prometheus.NewDesc(
			"roclink_simulations_active",
			"Number of active simulations",
			nil, nil,
		),
		gatewayDesc: prometheus.NewDesc(
			"roclink_gateway_connected",
			"Interface gateway connection status (1=connected, 0=other)",
			[]string{"sim", "state"}, nil,
		),
		phonesDesc: prometheus.NewDesc(
			"roclink_phones",
			"Registered phones by type",
			[]string{"type"}, nil,
		),
		callsDesc: prometheus.NewDesc(
			"roclink_calls",
			"Calls by state",
			[]string{"state"}, nil,
		),
		channelsDesc: prometheus.NewDesc(
			"roclink_call_channels",
			"Call channel pool occupancy",
			[]string{"state"}, nil,
		),
		trainsDesc: prometheus.NewDesc(
			"roclink_trains_tracked",
			"Number of trains reported by the feeds",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"roclink_uptime_seconds",
			"Seconds since the ROCLink process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.playersDesc
	ch <- c.simulationsDesc
	ch <- c.gatewayDesc
	ch <- c.phonesDesc
	ch <- c.callsDesc
	ch <- c.channelsDesc
	ch <- c.trainsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.players != nil {
		total, connected, inVoice, inCall := c.players.PlayerCounts()
		for state, v := range map[string]int{
			"total":     total,
			"connected": connected,
			"in_voice":  inVoice,
			"in_call":   inCall,
		} {
			ch <- prometheus.MustNewConstMetric(
				c.playersDesc, prometheus.GaugeValue, float64(v), state,
			)
		}

		ch <- prometheus.MustNewConstMetric(
			c.simulationsDesc, prometheus.GaugeValue,
			float64(c.players.ActiveSimulationCount()),
		)

		for sim, state := range c.players.GatewayStates() {
			val := 0.0
			if state == model.GatewayConnected {
				val = 1.0
			}
			ch <- prometheus.MustNewConstMetric(
				c.gatewayDesc, prometheus.GaugeValue, val,
				sim, string(state),
			)
		}
	}

	if c.phones != nil {
		for typ, count := range c.phones.PhoneCount() {
			ch <- prometheus.MustNewConstMetric(
				c.phonesDesc, prometheus.GaugeValue,
				float64(count), string(typ),
			)
		}
	}

	if c.calls != nil {
		pending, ongoing := c.calls.Counts()
		ch <- prometheus.MustNewConstMetric(
			c.callsDesc, prometheus.GaugeValue, float64(pending), "pending",
		)
		ch <- prometheus.MustNewConstMetric(
			c.callsDesc, prometheus.GaugeValue, float64(ongoing), "ongoing",
		)

		total, reserved, inUse := c.calls.ChannelCounts()
		for state, v := range map[string]int{
			"total":    total,
			"reserved": reserved,
			"in_use":   inUse,
		} {
			ch <- prometheus.MustNewConstMetric(
				c.channelsDesc, prometheus.GaugeValue, float64(v), state,
			)
		}
	}

	if c.trains != nil {
		ch <- prometheus.MustNewConstMetric(
			c.trainsDesc, prometheus.GaugeValue, float64(c.trains.Count()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
