package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/chartvox/pkg/recognizer"
	"github.com/MrWong99/chartvox/pkg/recognizer/mock"
)

func TestRecognizerFallback_PrimarySuccess(t *testing.T) {
	stream := &mock.Stream{EventsCh: make(chan recognizer.Event)}
	primary := &mock.Provider{Stream: stream}
	secondary := &mock.Provider{}

	fb := NewRecognizerFallback(primary, "relay", FallbackConfig{})
	fb.AddFallback("script", secondary)

	cfg := recognizer.Config{Language: "zh-TW", Hints: []string{"阿斯匹靈"}}
	s, err := fb.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s != stream {
		t.Error("Open did not return the primary stream")
	}
	calls := primary.Calls()
	if len(calls) != 1 || calls[0].Cfg.Language != "zh-TW" {
		t.Errorf("primary calls = %+v", calls)
	}
	if len(secondary.Calls()) != 0 {
		t.Error("secondary opened although primary succeeded")
	}
}

func TestRecognizerFallback_Failover(t *testing.T) {
	primary := &mock.Provider{OpenErr: recognizer.ErrUnavailable}
	secondary := &mock.Provider{}

	fb := NewRecognizerFallback(primary, "relay", FallbackConfig{})
	fb.AddFallback("script", secondary)

	if _, err := fb.Open(context.Background(), recognizer.Config{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(secondary.Calls()) != 1 {
		t.Errorf("secondary opened %d times, want 1", len(secondary.Calls()))
	}
}

func TestRecognizerFallback_AllFail(t *testing.T) {
	primary := &mock.Provider{OpenErr: errors.New("relay down")}
	secondary := &mock.Provider{OpenErr: errors.New("file missing")}

	fb := NewRecognizerFallback(primary, "relay", FallbackConfig{})
	fb.AddFallback("script", secondary)

	_, err := fb.Open(context.Background(), recognizer.Config{})
	if !errors.Is(err, recognizer.ErrUnavailable) || !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrUnavailable and ErrAllFailed", err)
	}
}
