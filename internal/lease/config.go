package lease

import "time"

// Bounds applied to configured values.
const (
	MinTTL           = 2
	MaxTTL           = 72000
	MinRadius        = 0
	MaxRadius        = 4
	MinRenewInterval = 50 * time.Millisecond
	MaxRenewInterval = 60 * time.Second
)

// Config tunes lease and recovery tickets. Tick counts are host ticks.
type Config struct {
	TTL            int           // lifetime of a lease ticket without renewal
	Radius         int           // chunks kept loaded around a leased companion
	RenewInterval  time.Duration // real time between renewals
	RecoveryRadius int           // chunks kept loaded around a recovery target
	CleanupDelay   int           // ticks before a recovery ticket is released
}

func DefaultConfig() Config {
	return Config{
		TTL:            60,
		Radius:         1,
		RenewInterval:  time.Second,
		RecoveryRadius: 1,
		CleanupDelay:   1200,
	}
}

// Clamped returns c with every field forced into its valid range.
func (c Config) Clamped() Config {
	c.TTL = clamp(c.TTL, MinTTL, MaxTTL)
	c.Radius = clamp(c.Radius, MinRadius, MaxRadius)
	c.RecoveryRadius = clamp(c.RecoveryRadius, MinRadius, MaxRadius)
	if c.RenewInterval < MinRenewInterval {
		c.RenewInterval = MinRenewInterval
	}
	if c.RenewInterval > MaxRenewInterval {
		c.RenewInterval = MaxRenewInterval
	}
	if c.CleanupDelay < 1 {
		c.CleanupDelay = 1
	}
	return c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
