package model

import "time"

// maxClockSpeed caps the reported simulation speed multiplier.
const maxClockSpeed = 32

// ClockData is the simulation clock state reported by the external feed.
type ClockData struct {
	Paused               bool      `json:"paused"`
	SecondsSinceMidnight int       `json:"secondsSinceMidnight"`
	Speed                float64   `json:"speed"`
	ReportedAt           time.Time `json:"reportedAt"`
}

// ClockFromFeed builds clock state from a feed clock message. The feed
// sends two updates per simulated second, so an interval of 500ms is
// realtime; shorter intervals mean the simulation runs faster.
func ClockFromFeed(secondsSinceMidnight, intervalMS int, paused bool) ClockData {
	speed := float64(0)
	if intervalMS > 0 {
		speed = 500 / float64(intervalMS)
	}
	if speed > maxClockSpeed {
		speed = maxClockSpeed
	}
	return ClockData{
		Paused:               paused,
		SecondsSinceMidnight: secondsSinceMidnight,
		Speed:                speed,
		ReportedAt:           time.Now(),
	}
}
