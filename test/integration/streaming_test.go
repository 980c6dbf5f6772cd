package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/provider/providertest"
)

func streamTalk(t *testing.T, content string) []api.TalkStreamEvent {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+"/v1/talk/stream", api.TalkRequest{UID: "30001", Content: content})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	events := parseSSEEvents(t, resp)
	if len(events) < 2 {
		t.Fatalf("expected at least 2 events, got %d", len(events))
	}
	return events
}

func TestStreamingEventSequence(t *testing.T) {
	events := streamTalk(t, "Hello")

	if events[0].Type != api.TalkEventCreated {
		t.Errorf("first event = %q, want talk.created", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != api.TalkEventDone {
		t.Fatalf("last event = %q, want talk.done", last.Type)
	}

	id := events[0].ID
	if !api.ValidateTalkID(id) {
		t.Errorf("malformed talk ID %q", id)
	}
	for i, ev := range events {
		if ev.ID != id {
			t.Errorf("event %d has ID %q, want %q", i, ev.ID, id)
		}
		if ev.SequenceNumber != i {
			t.Errorf("event %d has sequence number %d", i, ev.SequenceNumber)
		}
	}
}

func TestStreamingDeltasAggregate(t *testing.T) {
	events := streamTalk(t, "count from 1 to 5")

	var deltas strings.Builder
	for _, ev := range events {
		switch ev.Type {
		case api.TalkEventDelta:
			deltas.WriteString(ev.Delta)
		case api.TalkEventReasoning:
			t.Errorf("unexpected reasoning event %q", ev.Delta)
		}
	}
	if deltas.String() != "1, 2, 3, 4, 5" {
		t.Errorf("deltas = %q", deltas.String())
	}

	done := events[len(events)-1]
	if done.Reply == nil || done.Reply.Reply != "1, 2, 3, 4, 5" {
		t.Fatalf("done reply = %+v", done.Reply)
	}
	if done.FinishReason != "stop" {
		t.Errorf("finish reason = %q", done.FinishReason)
	}
	if done.Reply.Provider != "deepseek" || done.Reply.Model != providertest.DefaultModel {
		t.Errorf("provider/model = %s/%s", done.Reply.Provider, done.Reply.Model)
	}
}

func TestStreamingReasoningEvents(t *testing.T) {
	events := streamTalk(t, "think it through")

	var reasoning strings.Builder
	firstDelta := -1
	lastReasoning := -1
	for i, ev := range events {
		switch ev.Type {
		case api.TalkEventReasoning:
			reasoning.WriteString(ev.Delta)
			lastReasoning = i
		case api.TalkEventDelta:
			if firstDelta < 0 {
				firstDelta = i
			}
		}
	}
	if reasoning.String() != providertest.DefaultReasoning {
		t.Errorf("reasoning = %q", reasoning.String())
	}
	if lastReasoning < 0 || firstDelta < lastReasoning {
		t.Errorf("reasoning must precede answer deltas (last reasoning %d, first delta %d)", lastReasoning, firstDelta)
	}
	if done := events[len(events)-1]; done.Reply == nil || done.Reply.Reasoning != providertest.DefaultReasoning {
		t.Errorf("done reply = %+v", done.Reply)
	}
}

func TestStreamingBackendError(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/talk/stream", api.TalkRequest{UID: "30001", Content: "trigger:ratelimit"})
	events := parseSSEEvents(t, resp)

	last := events[len(events)-1]
	if last.Type != api.TalkEventError {
		t.Fatalf("last event = %q, want talk.error", last.Type)
	}
	if last.Error == nil || last.Error.Type != api.ErrorTypeTooManyRequests {
		t.Errorf("error = %+v", last.Error)
	}
}

func TestStreamFlagOnTalkEndpoint(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/talk", api.TalkRequest{UID: "30001", Content: "Hello", Stream: true})
	events := parseSSEEvents(t, resp)
	if events[len(events)-1].Type != api.TalkEventDone {
		t.Errorf("last event = %q", events[len(events)-1].Type)
	}
}

func TestCancelUnknownTalk(t *testing.T) {
	resp := deleteURL(t, testEnv.BaseURL()+"/v1/talk/"+api.NewTalkID())
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}
