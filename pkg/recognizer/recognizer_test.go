package recognizer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/MrWong99/chartvox/pkg/recognizer"
	"github.com/MrWong99/chartvox/pkg/recognizer/mock"
)

func TestFinals_DropsInterim(t *testing.T) {
	t.Parallel()

	s := &mock.Stream{EventsCh: make(chan recognizer.Event, 4)}
	s.EventsCh <- recognizer.Event{Text: "頭"}
	s.EventsCh <- recognizer.Event{Text: "頭痛", IsFinal: true}
	s.EventsCh <- recognizer.Event{Text: "還"}
	s.EventsCh <- recognizer.Event{Text: "還好", IsFinal: true}
	close(s.EventsCh)

	var got []string
	for u := range recognizer.Finals(context.Background(), s) {
		if !u.IsFinal {
			t.Errorf("interim utterance %q forwarded", u.Text)
		}
		got = append(got, u.Text)
	}
	if len(got) != 2 || got[0] != "頭痛" || got[1] != "還好" {
		t.Errorf("Finals = %v, want [頭痛 還好]", got)
	}
	if s.Closes() != 0 {
		t.Error("Finals closed the stream")
	}
}

func TestFinals_StopsOnCancel(t *testing.T) {
	t.Parallel()

	s := &mock.Stream{EventsCh: make(chan recognizer.Event)}
	ctx, cancel := context.WithCancel(context.Background())
	out := recognizer.Finals(ctx, s)
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("received an utterance after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Finals did not close its channel after cancel")
	}
}

func TestEvent_WireFormat(t *testing.T) {
	t.Parallel()

	raw := `{"text":"服用什麼藥物?","isFinal":true,"timestamp":"2026-10-15T09:00:05Z","confidence":0.92}`
	var e recognizer.Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	u := e.Utterance()
	if u.Text != "服用什麼藥物?" || !u.IsFinal {
		t.Errorf("Utterance = %+v", u)
	}
	if want := time.Date(2026, 10, 15, 9, 0, 5, 0, time.UTC); !u.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", u.Timestamp, want)
	}
	if e.Confidence != 0.92 {
		t.Errorf("Confidence = %v", e.Confidence)
	}

	b, err := json.Marshal(recognizer.Event{Text: "還好"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(b), `{"text":"還好","isFinal":false}`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}
