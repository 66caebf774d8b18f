package dapserver

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"

	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

// newIntegrationVM builds a RefVM with a single non-native function whose
// line table maps pc 0 to line 10, enough to drive a breakpoint hit.
func newIntegrationVM() (*vmscript.RefVM, *vmscript.RefFunction) {
	vm := vmscript.NewRefVM()
	fn := &vmscript.RefFunction{
		Qname:     "Actor.Tick",
		Source:    "game:scripts/actor.zs",
		Start:     0,
		End:       100,
		LineTable: []vmscript.PCLine{{PC: 0, Line: 10}, {PC: 10, Line: 11}},
	}
	vm.AddNamespace(vmscript.Namespace{Name: "game", Functions: []vmscript.Function{fn}})
	return vm, fn
}

// dialServer dials srv's ephemeral listener, returning the connection and a
// reader already positioned at the start of the stream.
func dialServer(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func sendRequest(t *testing.T, conn net.Conn, req dap.Message) {
	t.Helper()
	if err := dap.WriteProtocolMessage(conn, req); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readMessage(t *testing.T, reader *bufio.Reader) dap.Message {
	t.Helper()
	msg, err := dap.ReadProtocolMessage(reader)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

// TestServeFullSessionLifecycle drives one DAP client through initialize,
// breakpoint setup, a simulated VM thread hitting the breakpoint, stack
// inspection, continue, and disconnect, over a real TCP connection.
func TestServeFullSessionLifecycle(t *testing.T) {
	vm, fn := newIntegrationVM()
	srv, err := NewServer(Config{Port: 0}, Deps{VM: vm})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Shutdown() })

	conn, reader := dialServer(t, srv)

	seq := 0
	next := func() int { seq++; return seq }

	sendRequest(t, conn, &dap.InitializeRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{},
	})
	initResp, ok := readMessage(t, reader).(*dap.InitializeResponse)
	if !ok || !initResp.Success {
		t.Fatalf("expected a successful InitializeResponse, got %+v", initResp)
	}
	if !initResp.Body.SupportsConfigurationDoneRequest {
		t.Fatal("expected SupportsConfigurationDoneRequest")
	}
	if _, ok := readMessage(t, reader).(*dap.InitializedEvent); !ok {
		t.Fatal("expected an initialized event")
	}

	source := dap.Source{Path: "game:scripts/actor.zs"}
	sendRequest(t, conn, &dap.SetBreakpointsRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      source,
			Breakpoints: []dap.SourceBreakpoint{{Line: 10}},
		},
	})
	bpResp, ok := readMessage(t, reader).(*dap.SetBreakpointsResponse)
	if !ok {
		t.Fatalf("expected a SetBreakpointsResponse, got %T", bpResp)
	}
	if len(bpResp.Body.Breakpoints) != 1 || !bpResp.Body.Breakpoints[0].Verified || bpResp.Body.Breakpoints[0].Line != 10 {
		t.Fatalf("unexpected breakpoints: %+v", bpResp.Body.Breakpoints)
	}

	sendRequest(t, conn, &dap.ConfigurationDoneRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "configurationDone"},
	})
	if _, ok := readMessage(t, reader).(*dap.ConfigurationDoneResponse); !ok {
		t.Fatal("expected a ConfigurationDoneResponse")
	}

	// Simulate the VM thread reaching pc 0 (line 10, the installed
	// breakpoint). HandleInstruction blocks until the client continues.
	frame := &vmscript.RefFrame{Fn: fn}
	stack := &vmscript.RefStack{StackFrames: []vmscript.Frame{frame}}
	hitDone := make(chan struct{})
	go func() {
		srv.controller.HandleInstruction(stack, 0)
		close(hitDone)
	}()

	stoppedEvt, ok := readMessage(t, reader).(*dap.StoppedEvent)
	if !ok {
		t.Fatalf("expected a StoppedEvent, got %T", stoppedEvt)
	}
	if stoppedEvt.Body.Reason != "breakpoint" {
		t.Fatalf("expected reason breakpoint, got %q", stoppedEvt.Body.Reason)
	}

	sendRequest(t, conn, &dap.StackTraceRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	})
	stResp, ok := readMessage(t, reader).(*dap.StackTraceResponse)
	if !ok || len(stResp.Body.StackFrames) != 1 {
		t.Fatalf("expected one stack frame, got %+v", stResp)
	}
	topFrame := stResp.Body.StackFrames[0]
	if topFrame.Name != "Actor.Tick" || topFrame.Line != 10 {
		t.Fatalf("unexpected top frame: %+v", topFrame)
	}
	if topFrame.Source.Path != "game:scripts/actor.zs" {
		t.Fatalf("expected frame source to resolve to the binary cache entry, got %+v", topFrame.Source)
	}

	sendRequest(t, conn, &dap.ScopesRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: topFrame.Id},
	})
	scResp, ok := readMessage(t, reader).(*dap.ScopesResponse)
	if !ok || len(scResp.Body.Scopes) != 2 {
		t.Fatalf("expected two scopes (Local, Registers), got %+v", scResp)
	}
	if scResp.Body.Scopes[0].Name != "Local" || scResp.Body.Scopes[1].Name != "Registers" {
		t.Fatalf("unexpected scope order: %+v", scResp.Body.Scopes)
	}
	if !scResp.Body.Scopes[1].Expensive {
		t.Fatal("expected the Registers scope to be marked Expensive")
	}
	registersRef := scResp.Body.Scopes[1].VariablesReference

	sendRequest(t, conn, &dap.VariablesRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: registersRef},
	})
	varResp, ok := readMessage(t, reader).(*dap.VariablesResponse)
	if !ok || len(varResp.Body.Variables) != 5 {
		t.Fatalf("expected five register banks, got %+v", varResp)
	}
	wantNames := []string{"Params", "IntReg", "FloatReg", "StringReg", "PointerReg"}
	for i, name := range wantNames {
		if varResp.Body.Variables[i].Name != name {
			t.Fatalf("expected register bank %d to be %q, got %q", i, name, varResp.Body.Variables[i].Name)
		}
	}
	if varResp.Body.Variables[0].Value != "Params[0]" {
		t.Fatalf("unexpected Params bank value: %q", varResp.Body.Variables[0].Value)
	}

	sendRequest(t, conn, &dap.ContinueRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "continue"},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	})
	sawContinueResp, sawContinuedEvt := false, false
	for i := 0; i < 2; i++ {
		switch msg := readMessage(t, reader).(type) {
		case *dap.ContinueResponse:
			sawContinueResp = true
			if !msg.Body.AllThreadsContinued {
				t.Fatal("expected AllThreadsContinued")
			}
		case *dap.ContinuedEvent:
			sawContinuedEvt = true
		default:
			t.Fatalf("unexpected message while draining continue: %T", msg)
		}
	}
	if !sawContinueResp || !sawContinuedEvt {
		t.Fatal("expected both a ContinueResponse and a ContinuedEvent")
	}

	select {
	case <-hitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleInstruction did not return after continue")
	}

	sendRequest(t, conn, &dap.DisconnectRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: next(), Type: "request"}, Command: "disconnect"},
	})
	if _, ok := readMessage(t, reader).(*dap.DisconnectResponse); !ok {
		t.Fatal("expected a DisconnectResponse")
	}
	if _, ok := readMessage(t, reader).(*dap.TerminatedEvent); !ok {
		t.Fatal("expected a terminated event")
	}
}

// TestServeRejectsSecondConcurrentClient asserts the "one client at a time"
// invariant: a second connection is accepted at the TCP level but gets no
// session, so its own initialize request never receives a response.
func TestServeRejectsSecondConcurrentClient(t *testing.T) {
	vm, _ := newIntegrationVM()
	srv, err := NewServer(Config{Port: 0}, Deps{VM: vm})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Shutdown() })

	first, firstReader := dialServer(t, srv)
	sendRequest(t, first, &dap.InitializeRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{},
	})
	if _, ok := readMessage(t, firstReader).(*dap.InitializeResponse); !ok {
		t.Fatal("expected the first client to be accepted")
	}
	readMessage(t, firstReader) // initialized event

	second, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	if err := dap.WriteProtocolMessage(second, &dap.InitializeRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{},
	}); err != nil {
		t.Fatalf("write to second client: %v", err)
	}
	second.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 1)
	if n, err := second.Read(buf); err == nil && n > 0 {
		t.Fatal("expected the second connection to receive no session traffic")
	}
}
