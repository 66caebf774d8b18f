package dapserver

import (
	"encoding/json"
	"testing"

	"github.com/google/go-dap"
)

func TestNewEventBuildsValidEnvelope(t *testing.T) {
	msg := newEvent(7, "stopped", dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1})
	if msg.GetSeq() != 7 {
		t.Fatalf("expected seq 7, got %d", msg.GetSeq())
	}
	ev, ok := msg.(*genericEvent)
	if !ok {
		t.Fatalf("expected *genericEvent, got %T", msg)
	}
	if ev.Event.Event != "stopped" {
		t.Fatalf("expected event name %q, got %q", "stopped", ev.Event.Event)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "event" || decoded["event"] != "stopped" {
		t.Fatalf("unexpected envelope shape: %v", decoded)
	}
	body, ok := decoded["body"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected body object, got %v", decoded["body"])
	}
	if body["reason"] != "breakpoint" {
		t.Fatalf("expected reason breakpoint, got %v", body["reason"])
	}
}

func TestParseLaunchAttachArgumentsEmptyRaw(t *testing.T) {
	args, err := parseLaunchAttachArguments(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args.ProjectPath != "" || args.Restart {
		t.Fatalf("expected zero-value arguments, got %+v", args)
	}
}

func TestParseLaunchAttachArgumentsRoundTrip(t *testing.T) {
	raw := json.RawMessage(`{
		"projectPath": "/srv/scripts",
		"projectArchive": "game",
		"restart": true,
		"projectSources": [{"name": "actor.zs", "path": "game:scripts/actor.zs"}]
	}`)
	args, err := parseLaunchAttachArguments(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args.ProjectPath != "/srv/scripts" || args.ProjectArchive != "game" || !args.Restart {
		t.Fatalf("unexpected arguments: %+v", args)
	}
	if len(args.ProjectSources) != 1 || args.ProjectSources[0].Path != "game:scripts/actor.zs" {
		t.Fatalf("unexpected project sources: %+v", args.ProjectSources)
	}
}

func TestParseLaunchAttachArgumentsInvalidJSON(t *testing.T) {
	if _, err := parseLaunchAttachArguments(json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
