package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-search/internal/models"
)

type fakeTarget struct {
	hasReading bool
	err        error
	calls      atomic.Int32
}

func (f *fakeTarget) HasReading() bool { return f.hasReading }

func (f *fakeTarget) Refresh(ctx context.Context) (models.WeatherReading, error) {
	f.calls.Add(1)
	if f.err != nil {
		return models.WeatherReading{}, f.err
	}
	return models.WeatherReading{City: "London"}, nil
}

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New(&fakeTarget{}, "not a schedule", time.Second, nil); err == nil {
		t.Fatal("New() error = nil, want parse error")
	}
}

func TestRunOnce(t *testing.T) {
	tests := []struct {
		name      string
		target    *fakeTarget
		want      string
		wantCalls int32
	}{
		{"no reading", &fakeTarget{}, "skipped", 0},
		{"success", &fakeTarget{hasReading: true}, "success", 1},
		{"failure", &fakeTarget{hasReading: true, err: errors.New("upstream down")}, "error", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.target, "@every 1h", time.Second, nil)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := r.RunOnce(context.Background()); got != tt.want {
				t.Errorf("RunOnce() = %q, want %q", got, tt.want)
			}
			if got := tt.target.calls.Load(); got != tt.wantCalls {
				t.Errorf("Refresh calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestRefresher_StartStop(t *testing.T) {
	target := &fakeTarget{hasReading: true}
	r, err := New(target, "@every 1s", time.Second, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.Start()
	deadline := time.Now().Add(3 * time.Second)
	for target.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if target.calls.Load() == 0 {
		t.Error("scheduled refresh never ran")
	}
}
