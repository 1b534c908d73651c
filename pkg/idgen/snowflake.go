// Package idgen produces identifiers for marketplace records.
package idgen

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	timestampBits = 41
	machineIDBits = 10
	sequenceBits  = 12

	maxMachineID = (1 << machineIDBits) - 1 // 1023
	maxSequence  = (1 << sequenceBits) - 1   // 4095

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

// DefaultEpoch is 2024-01-01T00:00:00Z in unix milliseconds.
const DefaultEpoch int64 = 1704067200000

// ErrClockBackwards is returned when the wall clock moves behind the last issued ID.
var ErrClockBackwards = errors.New("clock moved backwards")

// Config holds snowflake settings.
type Config struct {
	MachineID int64 `mapstructure:"machine_id"`
	Epoch     int64 `mapstructure:"epoch"` // unix ms; 0 means DefaultEpoch
}

// Snowflake issues time-ordered, strictly positive 64-bit IDs.
type Snowflake struct {
	mu        sync.Mutex
	epoch     int64
	machineID int64
	sequence  int64
	lastTime  int64
	now       func() time.Time
}

// Parts are the decoded fields of a snowflake ID.
type Parts struct {
	Time      time.Time
	MachineID int64
	Sequence  int64
}

// NewSnowflake validates cfg and returns a generator.
func NewSnowflake(cfg Config) (*Snowflake, error) {
	if cfg.MachineID < 0 || cfg.MachineID > maxMachineID {
		return nil, fmt.Errorf("machine_id must be between 0 and %d, got %d", maxMachineID, cfg.MachineID)
	}
	epoch := cfg.Epoch
	if epoch == 0 {
		epoch = DefaultEpoch
	}
	return &Snowflake{
		epoch:     epoch,
		machineID: cfg.MachineID,
		now:       time.Now,
	}, nil
}

// Next returns the next ID.
func (g *Snowflake) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	if now < g.epoch {
		return 0, fmt.Errorf("current time is before custom epoch")
	}
	if now < g.lastTime {
		return 0, fmt.Errorf("%w: current=%d, last=%d", ErrClockBackwards, now, g.lastTime)
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastTime {
				now = g.now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = now

	ts := now - g.epoch
	return (ts << timestampShift) | (g.machineID << machineIDShift) | g.sequence, nil
}

// Parse decodes an ID issued by this generator's epoch.
func (g *Snowflake) Parse(id int64) (Parts, error) {
	if id <= 0 {
		return Parts{}, fmt.Errorf("id must be a positive integer")
	}
	ts := (id >> timestampShift) & ((1 << timestampBits) - 1)
	return Parts{
		Time:      time.UnixMilli(ts + g.epoch).UTC(),
		MachineID: (id >> machineIDShift) & maxMachineID,
		Sequence:  id & maxSequence,
	}, nil
}
