// The execution.Events bridge and the two change-notification bridges
// server.go wires into the Breakpoint Engine and the project watcher.
// Grounded on the conduit debug adapter's pattern of having the transport
// layer, not the domain state machine, own "what do I send the client":
// execution.Controller and breakpoints.Engine only know about callbacks,
// never about dap.Message.
package dapserver

import (
	"time"

	"github.com/google/go-dap"

	"github.com/glyphlang/glyph-dap/internal/breakpoints"
	"github.com/glyphlang/glyph-dap/internal/execution"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
)

// threadID is the fixed, single-thread id this VM abstraction exposes
// (spec.md §4.5 "threads": one synthetic thread).
const threadID = 1

// Stopped implements execution.Events. Controller.notifyStopped already runs
// this inside an "execution.<reason>" span, so this method itself stays
// unspanned; it is called on the VM thread, so it must not block, and
// sending to the session is a buffered write to the connection's own
// goroutine-free writer, already mutex-guarded by Session.send.
func (s *Server) Stopped(reason execution.StopReason) {
	s.sessionMu.Lock()
	sess := s.activeSession
	s.sessionMu.Unlock()
	if sess == nil {
		return
	}

	sess.pauseStarted = time.Now()

	if s.metrics != nil && reason == execution.ReasonBreakpoint {
		s.metrics.RecordBreakpointHit("breakpoint")
	}

	sess.sendEvent("stopped", dap.StoppedEventBody{
		Reason:            string(reason),
		ThreadId:          threadID,
		AllThreadsStopped: true,
	})
}

// Continued implements execution.Events. Controller.notifyContinued /
// Continue already run this inside an "execution.continue" span.
func (s *Server) Continued() {
	s.sessionMu.Lock()
	sess := s.activeSession
	s.sessionMu.Unlock()
	if sess == nil {
		return
	}

	if s.metrics != nil && !sess.pauseStarted.IsZero() {
		s.metrics.RecordPause(time.Since(sess.pauseStarted))
		sess.pauseStarted = time.Time{}
	}
	sess.tree = nil

	sess.sendEvent("continued", dap.ContinuedEventBody{
		ThreadId:            threadID,
		AllThreadsContinued: true,
	})
}

// emitBreakpointChanged sends the DAP `breakpoint` event for one change
// (spec.md §4.1 "clear_all"/"invalidate_for_script" notify the client so it
// can grey out stale gutter markers).
func (sess *Session) emitBreakpointChanged(ev breakpoints.ChangeEvent) {
	sess.sendEvent("breakpoint", dap.BreakpointEventBody{
		Reason: "changed",
		Breakpoint: dap.Breakpoint{
			Id:       int(ev.Record.ID),
			Verified: ev.Verified,
			Source:   ev.Source,
			Line:     ev.Record.Line,
		},
	})
}

// emitLoadedSourceChanged sends the DAP `loadedSource` event for a script
// that appeared, changed, or disappeared on disk (SPEC_FULL.md §4.2 "Live
// invalidation").
func (sess *Session) emitLoadedSourceChanged(qualifiedPath string, removed bool) {
	_, relPath := scriptref.Split(qualifiedPath)
	reason := "changed"
	if removed {
		reason = "removed"
	}
	sess.sendEvent("loadedSource", dap.LoadedSourceEventBody{
		Reason: reason,
		Source: dap.Source{
			Name:            scriptref.Basename(relPath),
			Path:            qualifiedPath,
			SourceReference: int(scriptref.Derive(qualifiedPath)),
		},
	})
}
