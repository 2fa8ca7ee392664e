package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruner struct {
	mu    sync.Mutex
	calls []int
	n     int
	err   error
}

func (f *fakePruner) Prune(_ context.Context, keep int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, keep)
	return f.n, f.err
}

func (f *fakePruner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRunRetentionNow(t *testing.T) {
	p := &fakePruner{n: 3}
	s := NewScheduler(context.Background(), p, 10)
	var pruned int
	s.OnPruned = func(n int) { pruned += n }

	s.RunRetentionNow()
	if len(p.calls) != 1 || p.calls[0] != 10 {
		t.Errorf("calls = %v, want [10]", p.calls)
	}
	if pruned != 3 {
		t.Errorf("OnPruned got %d, want 3", pruned)
	}

	p.err = errors.New("database is locked")
	s.RunRetentionNow()
	if pruned != 3 {
		t.Error("OnPruned must not run after a failed prune")
	}
}

func TestRegister_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), &fakePruner{}, 1)
	if err := s.Register("every tuesday"); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if err := s.Register("@hourly"); err != nil {
		t.Fatalf("@hourly: %v", err)
	}
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	p := &fakePruner{}
	s := NewScheduler(context.Background(), p, 5)
	if err := s.Register("@every 10ms"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for p.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.count() == 0 {
		t.Fatal("retention job never ran")
	}
}
