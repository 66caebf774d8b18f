// handleMessage dispatches one incoming DAP request to its handler
// (spec.md §4.5). Grounded on the conduit debug adapter's handleMessage
// type-switch: one case per concrete go-dap request type, each building and
// sending its own concretely-typed response.
package dapserver

import (
	"context"

	"github.com/google/go-dap"

	"github.com/glyphlang/glyph-dap/internal/errors"
	"github.com/glyphlang/glyph-dap/internal/execution"
	"github.com/glyphlang/glyph-dap/internal/introspection"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
	"github.com/glyphlang/glyph-dap/internal/store"
	"github.com/glyphlang/glyph-dap/internal/tracing"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

// traced runs fn inside a "dap.<command>" span (spec.md §4.3 "OpenTelemetry
// spans around DAP request handling"), one per dispatched request.
func (sess *Session) traced(command string, fn func()) {
	_ = tracing.WithSpan(context.Background(), "dap."+command, func(context.Context) error {
		fn()
		return nil
	})
}

func (sess *Session) handleMessage(msg dap.Message) error {
	var disconnecting bool
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		sess.traced(req.Command, func() { sess.handleInitialize(req) })
	case *dap.LaunchRequest:
		sess.traced(req.Command, func() { sess.handleLaunch(req) })
	case *dap.AttachRequest:
		sess.traced(req.Command, func() { sess.handleAttach(req) })
	case *dap.ConfigurationDoneRequest:
		sess.traced(req.Command, func() { sess.handleConfigurationDone(req) })
	case *dap.SetBreakpointsRequest:
		sess.traced(req.Command, func() { sess.handleSetBreakpoints(req) })
	case *dap.SetFunctionBreakpointsRequest:
		sess.traced(req.Command, func() { sess.handleSetFunctionBreakpoints(req) })
	case *dap.SetInstructionBreakpointsRequest:
		sess.traced(req.Command, func() { sess.handleSetInstructionBreakpoints(req) })
	case *dap.ContinueRequest:
		sess.traced(req.Command, func() { sess.handleContinue(req) })
	case *dap.PauseRequest:
		sess.traced(req.Command, func() { sess.handlePause(req) })
	case *dap.NextRequest:
		sess.traced(req.Command, func() { sess.handleStep(req.Seq, "next", execution.StepOver) })
	case *dap.StepInRequest:
		sess.traced(req.Command, func() { sess.handleStep(req.Seq, "stepIn", execution.StepIn) })
	case *dap.StepOutRequest:
		sess.traced(req.Command, func() { sess.handleStep(req.Seq, "stepOut", execution.StepOut) })
	case *dap.ThreadsRequest:
		sess.traced(req.Command, func() { sess.handleThreads(req) })
	case *dap.StackTraceRequest:
		sess.traced(req.Command, func() { sess.handleStackTrace(req) })
	case *dap.ScopesRequest:
		sess.traced(req.Command, func() { sess.handleScopes(req) })
	case *dap.VariablesRequest:
		sess.traced(req.Command, func() { sess.handleVariables(req) })
	case *dap.SourceRequest:
		sess.traced(req.Command, func() { sess.handleSource(req) })
	case *dap.LoadedSourcesRequest:
		sess.traced(req.Command, func() { sess.handleLoadedSources(req) })
	case *dap.DisconnectRequest:
		sess.traced(req.Command, func() { sess.handleDisconnect(req) })
		disconnecting = true
	case *dap.TerminateRequest:
		sess.traced(req.Command, func() { sess.handleTerminate(req) })
		disconnecting = true
	default:
		if sess.log != nil {
			sess.log.Warn("dapserver: unhandled request type")
		}
	}
	if disconnecting {
		return errDisconnect
	}
	return nil
}

// handleInitialize reports the fixed capability set spec.md §4.5 names.
func (sess *Session) handleInitialize(req *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsLoadedSourcesRequest:     true,
			SupportsFunctionBreakpoints:      true,
			SupportedChecksumAlgorithms:      []dap.ChecksumAlgorithm{"CRC32"},
		},
	}
	sess.sendResponse(req.Command, resp)
	sess.sendEvent("initialized", nil)
}

func (sess *Session) handleLaunch(req *dap.LaunchRequest) {
	args, err := parseLaunchAttachArguments(req.Arguments)
	if err != nil {
		sess.sendErrorResponse(req.Seq, req.Command, errors.Wrap(errors.SerializationError, err, "parse launch arguments"))
		return
	}
	sess.applyLaunchAttachArguments(args)

	resp := &dap.LaunchResponse{Response: sess.responseHeader(req.Seq, req.Command)}
	sess.sendResponse(req.Command, resp)
}

func (sess *Session) handleAttach(req *dap.AttachRequest) {
	args, err := parseLaunchAttachArguments(req.Arguments)
	if err != nil {
		sess.sendErrorResponse(req.Seq, req.Command, errors.Wrap(errors.SerializationError, err, "parse attach arguments"))
		return
	}
	sess.applyLaunchAttachArguments(args)

	resp := &dap.AttachResponse{Response: sess.responseHeader(req.Seq, req.Command)}
	sess.sendResponse(req.Command, resp)
}

// applyLaunchAttachArguments indexes project-supplied sources by ScriptRef
// and clears the Binary cache on non-restart (spec.md §4.5 "launch/attach").
func (sess *Session) applyLaunchAttachArguments(args launchAttachArguments) {
	sess.server.cfg.ProjectPath = firstNonEmpty(args.ProjectPath, sess.server.cfg.ProjectPath)
	sess.server.cfg.ProjectArchive = firstNonEmpty(args.ProjectArchive, sess.server.cfg.ProjectArchive)

	sess.projectSourcesMu.Lock()
	for _, src := range args.ProjectSources {
		ref := scriptref.Derive(src.Path)
		sess.projectSources[ref] = src
	}
	sess.projectSourcesMu.Unlock()

	if !args.Restart {
		sess.server.cache.Clear()
		sess.server.engine.ClearAll(false)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (sess *Session) handleConfigurationDone(req *dap.ConfigurationDoneRequest) {
	sess.configDoneMu.Lock()
	sess.configDone = true
	sess.configDoneMu.Unlock()

	resp := &dap.ConfigurationDoneResponse{Response: sess.responseHeader(req.Seq, req.Command)}
	sess.sendResponse(req.Command, resp)
}

// handleSetBreakpoints delegates to the Breakpoint Engine and persists the
// resulting records when a store is configured (SPEC_FULL.md §4.1).
func (sess *Session) handleSetBreakpoints(req *dap.SetBreakpointsRequest) {
	args := req.Arguments
	lines := sourceBreakpointLines(args)

	verified, err := sess.server.engine.SetSourceBreakpoints(args.Source, lines)
	if err != nil {
		sess.sendErrorResponse(req.Seq, req.Command, err)
		return
	}

	dapBreakpoints := make([]dap.Breakpoint, 0, len(verified))
	for _, v := range verified {
		dapBreakpoints = append(dapBreakpoints, dap.Breakpoint{
			Id:       int(v.ID),
			Verified: v.Verified,
			Line:     v.Line,
			Source:   args.Source,
		})
		if sess.server.store != nil {
			// The breakpoint id packs (ScriptRef << 32 | line); unpack rather
			// than re-deriving the ref from the source path, so this always
			// agrees with what the engine actually keyed the record under.
			ref := v.ID >> 32
			_ = sess.server.store.Upsert(context.Background(), store.Row{
				ScriptRef:    ref,
				Line:         v.Line,
				SourcePath:   args.Source.Path,
				SourceOrigin: args.Source.Origin,
			})
		}
	}

	resp := &dap.SetBreakpointsResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: dapBreakpoints},
	}
	sess.sendResponse(req.Command, resp)
}

func sourceBreakpointLines(args dap.SetBreakpointsArguments) []int {
	if len(args.Breakpoints) > 0 {
		lines := make([]int, len(args.Breakpoints))
		for i, bp := range args.Breakpoints {
			lines[i] = bp.Line
		}
		return lines
	}
	return args.Lines
}

func (sess *Session) handleSetFunctionBreakpoints(req *dap.SetFunctionBreakpointsRequest) {
	names := make([]string, len(req.Arguments.Breakpoints))
	for i, bp := range req.Arguments.Breakpoints {
		names[i] = bp.Name
	}

	verified, errs := sess.server.engine.SetFunctionBreakpoints(names)
	dapBreakpoints := make([]dap.Breakpoint, 0, len(verified))
	errIdx := 0
	for _, v := range verified {
		bp := dap.Breakpoint{Id: int(v.ID), Verified: v.Verified, Line: v.Line}
		if !v.Verified && errIdx < len(errs) {
			bp.Message = errs[errIdx].Error()
			errIdx++
		}
		dapBreakpoints = append(dapBreakpoints, bp)
	}

	resp := &dap.SetFunctionBreakpointsResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.SetFunctionBreakpointsResponseBody{Breakpoints: dapBreakpoints},
	}
	sess.sendResponse(req.Command, resp)
}

// handleSetInstructionBreakpoints always answers NotSupported (spec.md §6
// "answers 'not supported'").
func (sess *Session) handleSetInstructionBreakpoints(req *dap.SetInstructionBreakpointsRequest) {
	err := sess.server.engine.SetInstructionBreakpoints()
	sess.sendErrorResponse(req.Seq, req.Command, err)
}

func (sess *Session) handleContinue(req *dap.ContinueRequest) {
	sess.server.controller.Continue()
	resp := &dap.ContinueResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
	}
	sess.sendResponse(req.Command, resp)
}

func (sess *Session) handlePause(req *dap.PauseRequest) {
	sess.server.controller.Pause()
	resp := &dap.PauseResponse{Response: sess.responseHeader(req.Seq, req.Command)}
	sess.sendResponse(req.Command, resp)
}

// handleStep drives next/stepIn/stepOut identically: each steps from the
// current paused top frame (spec.md §4.3 "Step condition").
func (sess *Session) handleStep(requestSeq int, command string, kind execution.StepKind) {
	stack, _, ok := sess.server.controller.Paused()
	if !ok {
		sess.sendErrorResponse(requestSeq, command, errors.New(errors.InvalidHandle, "VM is not paused"))
		return
	}
	frames := stack.Frames()
	var frame vmscript.Frame
	if len(frames) > 0 {
		frame = frames[len(frames)-1]
	}
	sess.server.controller.Step(frame, kind)

	header := sess.responseHeader(requestSeq, command)
	switch command {
	case "next":
		sess.sendResponse(command, &dap.NextResponse{Response: header})
	case "stepIn":
		sess.sendResponse(command, &dap.StepInResponse{Response: header})
	default:
		sess.sendResponse(command, &dap.StepOutResponse{Response: header})
	}
}

func (sess *Session) handleThreads(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: threadID, Name: "VM"}}},
	}
	sess.sendResponse(req.Command, resp)
}

// handleStackTrace builds (or reuses) the introspection tree for the current
// pause and serializes its stack frames (spec.md §4.5 "stackTrace").
func (sess *Session) handleStackTrace(req *dap.StackTraceRequest) {
	stack, _, ok := sess.server.controller.Paused()
	if !ok {
		sess.sendErrorResponse(req.Seq, req.Command, errors.New(errors.InvalidHandle, "VM is not paused"))
		return
	}
	if sess.tree == nil {
		sess.tree = introspection.NewTree(sess.ids, sess.server.vm, stack)
	}

	threadNode, ok := sess.tree.ResolveByID(threadID)
	if !ok {
		sess.sendErrorResponse(req.Seq, req.Command, errors.New(errors.InvalidHandle, "no thread node"))
		return
	}

	frameNodes := threadNode.Children()
	vmFrames := stack.Frames()
	frames := make([]dap.StackFrame, 0, len(frameNodes))
	for i, n := range frameNodes {
		var vmFrame vmscript.Frame
		if idx := len(vmFrames) - 1 - i; idx >= 0 && idx < len(vmFrames) {
			vmFrame = vmFrames[idx]
		}
		src := sess.resolveFrameSource(vmFrame)
		frames = append(frames, n.ToStackFrame(src))
	}

	resp := &dap.StackTraceResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body: dap.StackTraceResponseBody{
			StackFrames: frames,
			TotalFrames: len(frames),
		},
	}
	sess.sendResponse(req.Command, resp)
}

// resolveFrameSource looks up the DAP Source descriptor for a stack frame's
// function, preferring a project-supplied Source indexed at launch/attach
// over the binary cache's own resolution (spec.md §4.5 "launch/attach").
func (sess *Session) resolveFrameSource(frame vmscript.Frame) *dap.Source {
	if frame == nil {
		return nil
	}
	fn := frame.Function()
	if fn.IsNative() {
		return nil
	}
	qualified := fn.SourcePath()
	if qualified == "" {
		return nil
	}

	ref := scriptref.Derive(qualified)
	sess.projectSourcesMu.Lock()
	src, ok := sess.projectSources[ref]
	sess.projectSourcesMu.Unlock()
	if ok {
		return &src
	}

	if data, ok := sess.server.cache.GetSourceData(qualified); ok {
		return data
	}
	return nil
}

func (sess *Session) handleScopes(req *dap.ScopesRequest) {
	if sess.tree == nil {
		sess.sendErrorResponse(req.Seq, req.Command, errors.New(errors.InvalidHandle, "no active stack trace"))
		return
	}
	node, ok := sess.tree.ResolveByID(req.Arguments.FrameId)
	if !ok {
		sess.sendErrorResponse(req.Seq, req.Command, errors.New(errors.InvalidHandle, "unknown frameId %d", req.Arguments.FrameId))
		return
	}
	children := node.Children()
	scopes := make([]dap.Scope, 0, len(children))
	for _, c := range children {
		scopes = append(scopes, c.ToScope())
	}
	resp := &dap.ScopesResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.ScopesResponseBody{Scopes: scopes},
	}
	sess.sendResponse(req.Command, resp)
}

func (sess *Session) handleVariables(req *dap.VariablesRequest) {
	if sess.tree == nil {
		sess.sendErrorResponse(req.Seq, req.Command, errors.New(errors.InvalidHandle, "no active stack trace"))
		return
	}
	node, ok := sess.tree.ResolveByID(req.Arguments.VariablesReference)
	if !ok {
		sess.sendErrorResponse(req.Seq, req.Command, errors.New(errors.InvalidHandle, "unknown variablesReference %d", req.Arguments.VariablesReference))
		return
	}
	children := node.Children()
	variables := make([]dap.Variable, 0, len(children))
	for _, c := range children {
		variables = append(variables, c.ToVariable())
	}
	resp := &dap.VariablesResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.VariablesResponseBody{Variables: variables},
	}
	sess.sendResponse(req.Command, resp)
}

// handleSource serves the decompiled-source fallback (spec.md §4.2): the
// raw bytes of the script at the requested Source/sourceReference.
func (sess *Session) handleSource(req *dap.SourceRequest) {
	src := dap.Source{SourceReference: req.Arguments.SourceReference}
	if req.Arguments.Source != nil {
		src = *req.Arguments.Source
	}

	data, ok := sess.server.cache.GetDecompiledSource(src)
	if !ok {
		sess.sendErrorResponse(req.Seq, req.Command, errors.New(errors.NotLoaded, "source %q is not loaded", src.Path))
		return
	}

	resp := &dap.SourceResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.SourceResponseBody{Content: string(data), MimeType: "text/plain"},
	}
	sess.sendResponse(req.Command, resp)
}

func (sess *Session) handleLoadedSources(req *dap.LoadedSourcesRequest) {
	sources := sess.server.cache.GetLoadedSources()
	for _, src := range sources {
		if sess.markSourceSeen(src.Path) {
			sess.restorePersistedBreakpoints(src)
		}
	}
	resp := &dap.LoadedSourcesResponse{
		Response: sess.responseHeader(req.Seq, req.Command),
		Body:     dap.LoadedSourcesResponseBody{Sources: sources},
	}
	sess.sendResponse(req.Command, resp)
}

// restorePersistedBreakpoints pre-populates pending source breakpoints for
// a newly-resolved ScriptRef from the optional store (SPEC_FULL.md §4.1
// persistence hook). Reconciled away as soon as the client's own
// setBreakpoints arrives for the same source.
func (sess *Session) restorePersistedBreakpoints(src dap.Source) {
	if sess.server.store == nil {
		return
	}
	ref := scriptref.Derive(src.Path)
	rows, err := sess.server.store.LoadForScript(context.Background(), int64(ref))
	if err != nil || len(rows) == 0 {
		return
	}
	lines := make([]int, len(rows))
	for i, r := range rows {
		lines[i] = r.Line
	}
	_, _ = sess.server.engine.SetSourceBreakpoints(src, lines)
}

func (sess *Session) handleDisconnect(req *dap.DisconnectRequest) {
	resp := &dap.DisconnectResponse{Response: sess.responseHeader(req.Seq, req.Command)}
	sess.sendResponse(req.Command, resp)
	sess.sendEvent("terminated", dap.TerminatedEventBody{})
}

func (sess *Session) handleTerminate(req *dap.TerminateRequest) {
	resp := &dap.TerminateResponse{Response: sess.responseHeader(req.Seq, req.Command)}
	sess.sendResponse(req.Command, resp)
	sess.sendEvent("terminated", dap.TerminatedEventBody{})
}
