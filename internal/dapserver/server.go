// Package dapserver implements the DAP Request Surface (spec.md §4.5): the
// TCP (and optional WebSocket) listener that accepts one Debug Adapter
// Protocol client at a time and translates its requests into calls against
// the Breakpoint Engine, Execution Controller, Runtime Introspection Tree,
// and Source/Binary Cache.
//
// Grounded on the conduit debug adapter's Server/handleConnection/Shutdown
// shape (listener, activeConns set, shutdown channel, WaitGroup) and on the
// go-dap session/dispatch-loop idiom from the same file.
package dapserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/glyphlang/glyph-dap/internal/binarycache"
	"github.com/glyphlang/glyph-dap/internal/breakpoints"
	"github.com/glyphlang/glyph-dap/internal/events"
	"github.com/glyphlang/glyph-dap/internal/execution"
	"github.com/glyphlang/glyph-dap/internal/logging"
	"github.com/glyphlang/glyph-dap/internal/metrics"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
	"github.com/glyphlang/glyph-dap/internal/store"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

// Config configures a Server. Zero-value WebsocketPort disables the second
// transport (SPEC_FULL.md §4.5 "Transports").
type Config struct {
	Port          int
	WebsocketPort int
	ProjectPath   string
	ProjectArchive string
}

// Server owns the TCP listener, the optional WebSocket listener, and every
// collaborator shared across reconnects: the VM, the binary cache, the
// breakpoint engine, and the execution controller all outlive any one
// session (spec.md §6 "one client at a time ... re-accepts").
type Server struct {
	cfg Config
	vm  vmscript.VM

	cache      *binarycache.Cache
	engine     *breakpoints.Engine
	controller *execution.Controller

	log     *logging.Logger
	metrics *metrics.Metrics
	mirror  *events.Mirror
	store   *store.Store
	fs      *ProjectFileSystem
	watcher *projectWatcher

	listener   net.Listener
	httpServer *http.Server

	sessionMu     sync.Mutex
	activeSession *Session

	wg          sync.WaitGroup
	shutdown    chan struct{}
	activeConns map[interface{ Close() error }]struct{}
	connMu      sync.Mutex
}

// Deps bundles the collaborators that exist independently of this package
// (vm, persistence, observability) that NewServer wires into every session.
type Deps struct {
	VM      vmscript.VM
	Log     *logging.Logger
	Metrics *metrics.Metrics
	Mirror  *events.Mirror
	Store   *store.Store
}

// NewServer creates a Server and opens its TCP listener on cfg.Port, but
// accepts no connections; call Serve to accept connections.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("dapserver: listen: %w", err)
	}

	fs := NewProjectFileSystem(cfg.ProjectPath, cfg.ProjectArchive)
	cache := binarycache.New(deps.VM, fs, deps.Log, deps.Metrics)

	s := &Server{
		cfg:         cfg,
		vm:          deps.VM,
		cache:       cache,
		log:         deps.Log,
		metrics:     deps.Metrics,
		mirror:      deps.Mirror,
		store:       deps.Store,
		fs:          fs,
		listener:    listener,
		shutdown:    make(chan struct{}),
		activeConns: make(map[interface{ Close() error }]struct{}),
	}
	s.engine = breakpoints.New(deps.VM, cache, s.onBreakpointChanged)
	s.controller = execution.New(s.engine, s)

	s.watcher = startProjectWatcher(cfg.ProjectPath, deps.Log, s.onProjectFileChanged)

	if cfg.WebsocketPort != 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/", s.handleWebsocketUpgrade)
		s.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.WebsocketPort), Handler: mux}
	}
	return s, nil
}

// Serve accepts connections until Shutdown is called. It blocks; callers run
// it in its own goroutine.
func (s *Server) Serve() error {
	if s.httpServer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				if s.log != nil {
					s.log.Error("dapserver: websocket listener failed: " + err.Error())
				}
			}
		}()
	}

	defer s.listener.Close()
	if s.log != nil {
		s.log.Info(fmt.Sprintf("dapserver: listening on :%d", s.cfg.Port))
	}

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				if s.log != nil {
					s.log.Warn("dapserver: accept failed: " + err.Error())
				}
				continue
			}
		}
		s.trackConn(conn)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) trackConn(c interface{ Close() error }) {
	s.connMu.Lock()
	s.activeConns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrackConn(c interface{ Close() error }) {
	s.connMu.Lock()
	delete(s.activeConns, c)
	s.connMu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.untrackConn(conn)
	s.runSession(conn)
}

func (s *Server) handleWebsocketUpgrade(w http.ResponseWriter, r *http.Request) {
	wsRaw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn("dapserver: websocket upgrade failed: " + err.Error())
		}
		return
	}
	conn := newWSConn(wsRaw)
	s.trackConn(conn)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()
		defer s.untrackConn(conn)
		s.runSession(conn)
	}()
}

// runSession rejects a second concurrent client (spec.md §6 "one client at a
// time") and otherwise creates and drives a Session to completion.
func (s *Server) runSession(conn interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}) {
	s.sessionMu.Lock()
	if s.activeSession != nil {
		s.sessionMu.Unlock()
		if s.log != nil {
			s.log.Warn("dapserver: rejecting connection, a session is already active")
		}
		return
	}
	sess := newSession(s, conn)
	s.activeSession = sess
	s.sessionMu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	sess.run()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}

	s.sessionMu.Lock()
	if s.activeSession == sess {
		s.activeSession = nil
	}
	s.sessionMu.Unlock()
}

// Shutdown stops accepting new connections, closes every active connection,
// and waits for in-flight sessions to finish.
func (s *Server) Shutdown() error {
	close(s.shutdown)
	s.listener.Close()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.watcher.Close()

	s.connMu.Lock()
	for c := range s.activeConns {
		c.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	if s.store != nil {
		s.store.Close()
	}
	if s.mirror != nil {
		s.mirror.Close()
	}
	return nil
}

// onBreakpointChanged bridges breakpoints.Engine's onChange callback to the
// DAP `breakpoint` event and, when persistence is enabled, to the store: a
// change event always means "these records are gone" (ClearAll/
// InvalidateForScript), so the matching rows are deleted rather than
// upserted.
func (s *Server) onBreakpointChanged(ev breakpoints.ChangeEvent) {
	s.sessionMu.Lock()
	sess := s.activeSession
	s.sessionMu.Unlock()
	if sess != nil {
		sess.emitBreakpointChanged(ev)
	}
	if s.store != nil {
		ref := scriptref.Derive(ev.Source.Path)
		_ = s.store.DeleteForScript(context.Background(), int64(ref))
	}
}

// onProjectFileChanged bridges the project's fsnotify watcher to a cache
// invalidation and a `loadedSource` event (SPEC_FULL.md §4.2).
func (s *Server) onProjectFileChanged(relPath string, removed bool) {
	s.fs.Rescan()
	qualified := scriptref.Qualify(s.cfg.ProjectArchive, relPath)
	ref := scriptref.Derive(qualified)
	s.engine.InvalidateForScript(ref)
	s.cache.Clear()

	s.sessionMu.Lock()
	sess := s.activeSession
	s.sessionMu.Unlock()
	if sess != nil {
		sess.emitLoadedSourceChanged(qualified, removed)
	}
}
