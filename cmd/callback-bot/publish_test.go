package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/asterisk-callback-bot/internal/ami"
	"github.com/sweeney/asterisk-callback-bot/internal/correlator"
	"github.com/sweeney/asterisk-callback-bot/internal/messenger"
	"github.com/sweeney/asterisk-callback-bot/internal/publisher"
	"github.com/sweeney/asterisk-callback-bot/internal/registry"
	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

const customer = "79991234567"

type stubDialer struct{ err error }

func (d stubDialer) Originate(context.Context, string, string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return "cb-1", nil
}

func fixturesDir() string {
	return filepath.Join("..", "..", "testdata", "fixtures")
}

// runPipeline replays a missed call, a press on extension 101 and then the
// fixture through the correlator, publishing every transition.
func runPipeline(t *testing.T, fixture, prefix string, dialer stubDialer) *publisher.MockPublisher {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixturesDir(), fixture))
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}

	mock := publisher.NewMockPublisher()
	corr := correlator.New(correlator.Deps{
		ChatID:    -1001,
		Renderer:  render.New(render.DefaultGrid()),
		Messenger: messenger.NewMockMessenger(),
		Dialer:    dialer,
	})

	events := []correlator.Event{
		correlator.MissedCall{Customer: customer, WaitSeconds: 42},
		correlator.Selection{
			InteractionID: "q1",
			Message:       messenger.MessageRef{ChatID: -1001, MessageID: 55},
			MessageText:   render.MissedCallNotice(customer, 42),
			Data:          "101," + customer,
		},
	}
	for _, evt := range ami.ParseBytes(data) {
		events = append(events, correlator.Telephony{Event: evt})
	}

	for _, evt := range events {
		for _, change := range corr.Process(context.Background(), evt) {
			if err := publishTransition(context.Background(), mock, prefix, change); err != nil {
				t.Fatalf("publish error: %v", err)
			}
		}
	}
	return mock
}

// events returns the callback events published under prefix, with topics.
func events(t *testing.T, mock *publisher.MockPublisher, prefix string) ([]publisher.CallbackEvent, []string) {
	t.Helper()
	evts, err := mock.Events(prefix)
	if err != nil {
		t.Fatalf("decoding published events: %v", err)
	}
	topics := make([]string, len(evts))
	for i, e := range evts {
		topics[i] = e.Topic(prefix)
	}
	return evts, topics
}

func assertTopic(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("expected topic %q, got %q", want, got)
	}
}

func assertCauseCode(t *testing.T, e publisher.CallbackEvent, want int) {
	t.Helper()
	if e.CauseCode == nil || *e.CauseCode != want {
		t.Errorf("expected cause_code=%d, got %v", want, e.CauseCode)
	}
}

func TestIntegrationAnsweredCallback(t *testing.T) {
	mock := runPipeline(t, "callback-answered.raw", "asterisk", stubDialer{})
	evts, _ := events(t, mock, "asterisk")
	recs := mock.Records()

	if len(evts) != 4 || len(recs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(recs))
	}

	assertTopic(t, recs[0].Topic, "asterisk/callback/79991234567/missed")
	assertTopic(t, recs[1].Topic, "asterisk/callback/79991234567/101/dialing")
	assertTopic(t, recs[2].Topic, "asterisk/callback/79991234567/101/bridged")
	assertTopic(t, recs[3].Topic, "asterisk/callback/79991234567/101/ended")

	missed := evts[0]
	if missed.Event != "missed" || missed.Customer != customer || missed.Extension != "" {
		t.Errorf("unexpected missed event: %+v", missed)
	}
	if !strings.Contains(string(recs[0].Payload), `"customer"`) || strings.Contains(string(recs[0].Payload), `"extension"`) {
		t.Errorf("missed payload should carry customer but no extension: %s", recs[0].Payload)
	}

	dialing := evts[1]
	if dialing.Description != "An operator chose to call the customer back" || dialing.Extension != "101" {
		t.Errorf("unexpected dialing event: %+v", dialing)
	}

	if evts[2].Cause != "" {
		t.Errorf("expected no cause on bridged, got %q", evts[2].Cause)
	}

	ended := evts[3]
	if ended.Cause != "normal_clearing" {
		t.Errorf("expected cause=normal_clearing, got %q", ended.Cause)
	}
	if ended.CauseDescription != "The operator and the customer finished the call normally" {
		t.Errorf("unexpected cause_description %q", ended.CauseDescription)
	}
	assertCauseCode(t, ended, 16)
	if _, err := time.Parse(time.RFC3339, ended.Timestamp); err != nil {
		t.Errorf("timestamp is not RFC3339: %v", err)
	}
}

func TestIntegrationNoAnswer(t *testing.T) {
	mock := runPipeline(t, "callback-no-answer.raw", "pbx", stubDialer{})
	recs := mock.Records()

	if len(recs) != 3 {
		t.Fatalf("expected 3 messages (missed, dialing, ended), got %d", len(recs))
	}
	for _, r := range recs {
		if !strings.HasPrefix(r.Topic, "pbx/callback/") {
			t.Errorf("expected topic prefix 'pbx/callback/', got %q", r.Topic)
		}
	}

	evts, _ := events(t, mock, "pbx")
	if evts[2].Cause != "call_rejected" {
		t.Errorf("expected cause=call_rejected, got %q", evts[2].Cause)
	}
	assertCauseCode(t, evts[2], 21)
}

func TestIntegrationOperatorFailed(t *testing.T) {
	mock := runPipeline(t, "callback-operator-failed.raw", "asterisk", stubDialer{})
	evts, topics := events(t, mock, "asterisk")

	if len(evts) != 3 {
		t.Fatalf("expected 3 messages (missed, dialing, failed), got %d", len(evts))
	}
	assertTopic(t, topics[2], "asterisk/callback/79991234567/101/failed")

	failed := evts[2]
	if failed.Cause != "dropped" || failed.Reason != "originate failed, reason 3" {
		t.Errorf("unexpected failed event: %+v", failed)
	}
	if failed.CauseCode != nil {
		t.Errorf("expected no cause_code, got %d", *failed.CauseCode)
	}
}

func TestIntegrationOriginateError(t *testing.T) {
	mock := runPipeline(t, "callback-answered.raw", "asterisk", stubDialer{err: ami.ErrNotConnected})
	evts, _ := events(t, mock, "asterisk")

	// The attempt is released before the fixture arrives, so nothing follows.
	if len(evts) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(evts))
	}
	if evts[2].Event != "failed" {
		t.Errorf("expected failed event, got %q", evts[2].Event)
	}
	if !strings.Contains(evts[2].Reason, "not connected") {
		t.Errorf("expected reason to mention the connection, got %q", evts[2].Reason)
	}
}

func TestPublishUnmappedCause(t *testing.T) {
	mock := publisher.NewMockPublisher()
	change := correlator.Transition{
		State:     correlator.StateEnded,
		Key:       registry.CallKey{Customer: customer, Extension: "202"},
		Cause:     "34",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := publishTransition(context.Background(), mock, "asterisk", change); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evts, _ := events(t, mock, "asterisk")
	e := evts[0]
	if e.Cause != "unknown" {
		t.Errorf("expected cause=unknown, got %q", e.Cause)
	}
	if e.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("unexpected timestamp %q", e.Timestamp)
	}
	assertCauseCode(t, e, 34)
	if e.CauseDescription != "" {
		t.Errorf("expected no cause_description, got %q", e.CauseDescription)
	}
}

func TestPublishErrorPropagates(t *testing.T) {
	mock := publisher.NewMockPublisher()
	mock.SetError(context.DeadlineExceeded)

	err := publishTransition(context.Background(), mock, "asterisk", correlator.Transition{State: correlator.StateMissed})
	if err == nil {
		t.Fatal("expected publish error")
	}
}

func TestTransitionsPublishThroughQueue(t *testing.T) {
	mock := publisher.NewMockPublisher()
	queue := publisher.NewAsync(mock)
	ctx := context.Background()

	for _, change := range []correlator.Transition{
		{State: correlator.StateMissed, Key: registry.CallKey{Customer: customer}},
		{State: correlator.StateDialing, Key: registry.CallKey{Customer: customer, Extension: "101"}},
	} {
		if err := publishTransition(ctx, queue, "asterisk", change); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(mock.Records()) != 0 {
		t.Fatal("queued transitions must not reach the broker before Run")
	}

	queue.Close()
	queue.Run(ctx)

	_, topics := events(t, mock, "asterisk")
	if len(topics) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(topics))
	}
	assertTopic(t, topics[1], "asterisk/callback/79991234567/101/dialing")
}
