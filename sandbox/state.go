package sandbox

import (
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/criyle/judgebox/protocol"
)

// State is a snapshot of the orchestrator
type State struct {
	PID        int
	StartTime  time.Time
	Busy       bool
	Generation uint64
	Loads      int
	Judged     uint64
	UseMemory  uint64
	MaxMemory  uint64
}

// Status returns a snapshot of the current state
func (o *Orchestrator) Status() State {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	ls := o.loader.Stats()
	return State{
		PID:        os.Getpid(),
		StartTime:  o.startTime,
		Busy:       o.IsBusy(),
		Generation: ls.Generation,
		Loads:      ls.Loads,
		Judged:     o.judged.Load(),
		UseMemory:  mem.HeapInuse + mem.StackInuse,
		MaxMemory:  o.maxMemory(&mem),
	}
}

// maxMemory prefers the runtime soft limit, then the configured value, then
// what the runtime obtained from the OS
func (o *Orchestrator) maxMemory(mem *runtime.MemStats) uint64 {
	if l := debug.SetMemoryLimit(-1); l > 0 && l < math.MaxInt64 {
		return uint64(l)
	}
	if o.conf.MaxMemory > 0 {
		return o.conf.MaxMemory
	}
	return mem.Sys
}

func (s State) payload() protocol.Status {
	return protocol.Status{
		PID:            strconv.Itoa(s.PID),
		BeginStartTime: s.StartTime.UnixMilli(),
		Busy:           s.Busy,
		UseMemory:      s.UseMemory,
		MaxMemory:      s.MaxMemory,
		Generation:     s.Generation,
		Judged:         s.Judged,
	}
}
