package call

import "sync"

// poolChannel is one exclusive call channel. Reserved means a call holds
// it; inUse means parties have actually been moved into it.
type poolChannel struct {
	id       string
	reserved bool
	inUse    bool
}

// ChannelPool hands out exclusive voice channels for accepted calls. A
// channel is reserved before anyone is moved and released when the call
// ends or fails to set up, so two calls can never share a channel.
type ChannelPool struct {
	mu       sync.Mutex
	channels []*poolChannel
}

// NewChannelPool builds a pool over the given channel ids.
func NewChannelPool(channelIDs []string) *ChannelPool {
	pool := &ChannelPool{}
	for _, id := range channelIDs {
		pool.channels = append(pool.channels, &poolChannel{id: id})
	}
	return pool
}

// TryReserve claims the first free channel. It reports false when the pool
// is exhausted; the caller decides how to surface that.
func (p *ChannelPool) TryReserve() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.channels {
		if !c.reserved {
			c.reserved = true
			return c.id, true
		}
	}
	return "", false
}

// Release returns a channel to the pool.
func (p *ChannelPool) Release(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.channels {
		if c.id == channelID {
			c.reserved = false
			c.inUse = false
			return
		}
	}
}

// MarkInUse records that parties occupy the channel.
func (p *ChannelPool) MarkInUse(channelID string) {
	p.setInUse(channelID, true)
}

// MarkIdle records that the channel is reserved but empty.
func (p *ChannelPool) MarkIdle(channelID string) {
	p.setInUse(channelID, false)
}

func (p *ChannelPool) setInUse(channelID string, inUse bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.channels {
		if c.id == channelID {
			c.inUse = inUse
			return
		}
	}
}

// Counts returns the pool size plus how many channels are reserved and in
// use, for status views and metrics.
func (p *ChannelPool) Counts() (total, reserved, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total = len(p.channels)
	for _, c := range p.channels {
		if c.reserved {
			reserved++
		}
		if c.inUse {
			inUse++
		}
	}
	return total, reserved, inUse
}
