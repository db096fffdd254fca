package vm

import (
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim"
)

// Hook positions at which a VM invokes its hooks.
var (
	// HookPosTraceRecorded fires when a finished trace enters the cache.
	// Item is the *trace.Trace.
	HookPosTraceRecorded = &sim.HookPos{Name: "TraceRecorded"}

	// HookPosTraceEntered fires when replay of a trace begins. Item is the
	// *trace.Trace.
	HookPosTraceEntered = &sim.HookPos{Name: "TraceEntered"}

	// HookPosGuardFailed fires when replay leaves a trace early. Item is
	// the trace.Instruction whose guard failed.
	HookPosGuardFailed = &sim.HookPos{Name: "GuardFailed"}

	// HookPosTraceInvalidated fires when an instruction memory write
	// empties the trace cache. Item is the written address.
	HookPosTraceInvalidated = &sim.HookPos{Name: "TraceInvalidated"}

	// HookPosRecordingAborted fires when a recording is discarded. Item is
	// the start address and Detail the reason.
	HookPosRecordingAborted = &sim.HookPos{Name: "RecordingAborted"}

	// HookPosRetire fires for every retired instruction. Item is the
	// emu.Retirement and Detail is true when it was replayed.
	HookPosRetire = &sim.HookPos{Name: "Retire"}
)

// An EventLogger writes one line per VM event.
//
// Lines have the form step,domain,event,detail.
type EventLogger struct {
	writer    io.Writer
	positions map[*sim.HookPos]bool

	// Colorize, if set, decorates each line before it is written.
	Colorize func(pos *sim.HookPos, line string) string
}

// NewEventLogger creates a logger that writes to w. If positions are
// given, only those events are logged.
func NewEventLogger(w io.Writer, positions ...*sim.HookPos) *EventLogger {
	l := &EventLogger{writer: w}
	if len(positions) > 0 {
		l.positions = make(map[*sim.HookPos]bool)
		for _, pos := range positions {
			l.positions[pos] = true
		}
	}
	return l
}

// Func writes the event described by ctx.
func (l *EventLogger) Func(ctx sim.HookCtx) {
	if l.positions != nil && !l.positions[ctx.Pos] {
		return
	}

	var step uint64
	name := "vm"
	if v, ok := ctx.Domain.(*VM); ok {
		step = v.StepsExecuted()
		name = v.Name()
	}

	line := fmt.Sprintf("%d,%s,%s,%s", step, name, ctx.Pos.Name, describe(ctx))
	if l.Colorize != nil {
		line = l.Colorize(ctx.Pos, line)
	}

	_, err := fmt.Fprintln(l.writer, line)
	if err != nil {
		panic(err)
	}
}

func describe(ctx sim.HookCtx) string {
	switch item := ctx.Item.(type) {
	case fmt.Stringer:
		if ctx.Pos == HookPosTraceRecorded || ctx.Pos == HookPosTraceEntered {
			return fmt.Sprintf("{start: 0x%04x}", startOf(item))
		}
		if ctx.Detail != nil {
			return fmt.Sprintf("{%s, %v}", item, ctx.Detail)
		}
		return "{" + item.String() + "}"
	case uint16:
		if ctx.Detail != nil {
			return fmt.Sprintf("{0x%04x, %v}", item, ctx.Detail)
		}
		return fmt.Sprintf("{0x%04x}", item)
	}
	return "{}"
}

func startOf(s fmt.Stringer) uint16 {
	if t, ok := s.(interface{ PC() uint16 }); ok {
		return t.PC()
	}
	return 0
}
