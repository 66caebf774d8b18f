// Session drives one DAP client connection end to end (spec.md §4.5):
// reading Content-Length- or WebSocket-framed protocol messages, dispatching
// them to the request handlers in requests.go, and writing back responses
// and events. Grounded on the conduit debug adapter's DebugAdapter: the
// bufio reader, the handleMessage type-switch, and the mutex-guarded
// nextSeq counter carry over directly.
package dapserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/glyphlang/glyph-dap/internal/errors"
	"github.com/glyphlang/glyph-dap/internal/introspection"
	"github.com/glyphlang/glyph-dap/internal/logging"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
)

// sessionConn is the minimal stream a Session needs; both net.Conn and
// *wsConn satisfy it.
type sessionConn interface {
	io.Reader
	io.Writer
}

// errDisconnect is handleMessage's signal that the client asked to end the
// session cleanly (disconnect/terminate), distinct from a read/protocol
// error: run() stops the loop without logging it as a failure.
var errDisconnect = fmt.Errorf("dapserver: session disconnected")

// Session is one connected DAP client. Its collaborators (cache, breakpoint
// engine, execution controller) belong to the owning Server and outlive the
// Session itself; only per-connection state (ids, the current paused tree,
// configurationDone bookkeeping) lives here.
type Session struct {
	server *Server
	conn   sessionConn
	reader *bufio.Reader

	id  string
	log *logging.ContextLogger

	seqMu sync.Mutex
	seq   int

	writeMu sync.Mutex

	ids  *introspection.IdProvider
	tree *introspection.Tree

	configDoneMu sync.Mutex
	configDone   bool

	projectSourcesMu sync.Mutex
	projectSources   map[scriptref.Ref]dap.Source

	pauseStarted time.Time

	seenSourcesMu sync.Mutex
	seenSources   map[string]bool
}

func newSession(server *Server, conn sessionConn) *Session {
	id := logging.NewSessionID()
	var logger *logging.ContextLogger
	if server.log != nil {
		logger = server.log.WithSession(id)
	}
	return &Session{
		server:         server,
		conn:           conn,
		reader:         bufio.NewReader(conn),
		id:             id,
		log:            logger,
		ids:            introspection.NewIdProvider(),
		projectSources: make(map[scriptref.Ref]dap.Source),
		seenSources:    make(map[string]bool),
	}
}

// run is the dispatch loop: read one protocol message, handle it, repeat
// until the connection closes or a fatal protocol error occurs.
func (sess *Session) run() {
	if sess.log != nil {
		sess.log.Info("session started")
	}
	defer func() {
		sess.server.controller.Close()
		if sess.log != nil {
			sess.log.Info("session ended")
		}
	}()

	for {
		msg, err := dap.ReadProtocolMessage(sess.reader)
		if err != nil {
			if err != io.EOF && sess.log != nil {
				sess.log.Warn("read protocol message: " + err.Error())
			}
			return
		}
		if err := sess.handleMessage(msg); err != nil {
			if err != errDisconnect && sess.log != nil {
				sess.log.Error("handle message: " + err.Error())
			}
			return
		}
	}
}

func (sess *Session) nextSeq() int {
	sess.seqMu.Lock()
	defer sess.seqMu.Unlock()
	sess.seq++
	return sess.seq
}

func (sess *Session) send(msg dap.Message) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return dap.WriteProtocolMessage(sess.conn, msg)
}

func (sess *Session) sendEvent(event string, body interface{}) {
	msg := newEvent(sess.nextSeq(), event, body)
	if err := sess.send(msg); err != nil && sess.log != nil {
		sess.log.Warn(fmt.Sprintf("send %s event: %v", event, err))
	}
	if sess.server.mirror != nil {
		switch event {
		case "stopped", "continued", "output", "breakpoint":
			sess.server.mirror.Publish(context.Background(), event, body)
		}
	}
}

// responseHeader builds the Response envelope shared by every successful
// response; callers attach their own Body type and pass the result to send.
func (sess *Session) responseHeader(requestSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: sess.nextSeq(), Type: "response"},
		RequestSeq:      requestSeq,
		Success:         true,
		Command:         command,
	}
}

func (sess *Session) sendResponse(command string, msg dap.Message) {
	if err := sess.send(msg); err != nil && sess.log != nil {
		sess.log.Warn(fmt.Sprintf("send %s response: %v", command, err))
	}
	if sess.server.metrics != nil {
		sess.server.metrics.RecordRequest(command)
	}
}

// sendErrorResponse answers a request with Success=false, translating the
// debug adapter's typed errors.Kind into the DAP error message text (spec.md
// §7: every operation returns a response or one of the fixed error kinds).
func (sess *Session) sendErrorResponse(requestSeq int, command string, err error) {
	message := err.Error()
	if kind, ok := errors.KindOf(err); ok {
		message = fmt.Sprintf("[%s] %s", kind, err.Error())
	}
	resp := &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: sess.nextSeq(), Type: "response"},
			RequestSeq:      requestSeq,
			Success:         false,
			Command:         command,
			Message:         message,
		},
	}
	if err := sess.send(resp); err != nil && sess.log != nil {
		sess.log.Warn(fmt.Sprintf("send error response for %s: %v", command, err))
	}
	sess.sendEvent("output", dap.OutputEventBody{Category: "stderr", Output: errors.Format(err)})
}

func (sess *Session) markSourceSeen(qualifiedPath string) bool {
	sess.seenSourcesMu.Lock()
	defer sess.seenSourcesMu.Unlock()
	if sess.seenSources[qualifiedPath] {
		return false
	}
	sess.seenSources[qualifiedPath] = true
	return true
}
