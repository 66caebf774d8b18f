// Small helpers shared by the request handlers and the event bridge: a
// generic event envelope (go-dap defines one concrete struct per event with
// its own typed Body, but every shape on the wire is just
// {seq,type:"event",event,body}, so one generic envelope covers all of
// them) and the DAP launch/attach extension argument shapes SPEC_FULL.md
// §4.5 adds on top of the bare protocol.
package dapserver

import (
	"encoding/json"

	"github.com/google/go-dap"
)

// genericEvent lets the event bridge emit any named DAP event without a
// dedicated Go type per event, while still satisfying dap.Message (it
// embeds dap.Event, which embeds dap.ProtocolMessage, which implements
// GetSeq()).
type genericEvent struct {
	dap.Event
	Body interface{} `json:"body,omitempty"`
}

func newEvent(seq int, event string, body interface{}) dap.Message {
	return &genericEvent{
		Event: dap.Event{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "event"},
			Event:           event,
		},
		Body: body,
	}
}

// launchAttachArguments is the extension shape both launch and attach
// accept (SPEC_FULL.md §4.5 "launch/attach ... extension fields").
type launchAttachArguments struct {
	ProjectPath    string      `json:"projectPath,omitempty"`
	ProjectArchive string      `json:"projectArchive,omitempty"`
	ProjectSources []dap.Source `json:"projectSources,omitempty"`
	Restart        bool        `json:"restart,omitempty"`
}

func parseLaunchAttachArguments(raw json.RawMessage) (launchAttachArguments, error) {
	var args launchAttachArguments
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, err
	}
	return args, nil
}
