package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/notify"
)

type fakeRepo struct {
	mu      sync.Mutex
	batches [][]*db.Notification
	claims  int
	err     error
}

func (r *fakeRepo) ClaimDue(ctx context.Context, limit int, claimFor time.Duration) ([]*db.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.batches) == 0 {
		return nil, nil
	}
	batch := r.batches[0]
	r.batches = r.batches[1:]
	return batch, nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	processed []uuid.UUID
	err       error
}

func (d *fakeDispatcher) Redispatch(ctx context.Context, n *db.Notification) (*notify.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed = append(d.processed, n.ID)
	if d.err != nil {
		return nil, d.err
	}
	n.Status = db.StatusSent
	return &notify.Outcome{Notification: n, Success: true}, nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.processed)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func dueNotification() *db.Notification {
	return &db.Notification{
		ID:       uuid.New(),
		Status:   db.StatusPending,
		Channels: []db.Channel{db.ChannelEmail},
	}
}

func TestWorker_ProcessesClaimedBatch(t *testing.T) {
	repo := &fakeRepo{batches: [][]*db.Notification{
		{dueNotification(), dueNotification()},
	}}
	dispatcher := &fakeDispatcher{}

	w := New(repo, dispatcher, Config{PollInterval: 10 * time.Millisecond}, zap.NewNop())
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, func() bool { return dispatcher.count() == 2 })
}

func TestWorker_ClaimErrorKeepsPolling(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	dispatcher := &fakeDispatcher{}

	w := New(repo, dispatcher, Config{PollInterval: 5 * time.Millisecond}, zap.NewNop())
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.claims >= 3
	})
	if dispatcher.count() != 0 {
		t.Errorf("processed = %d, nothing to process on claim errors", dispatcher.count())
	}
}

func TestWorker_RedispatchErrorDoesNotStopBatch(t *testing.T) {
	repo := &fakeRepo{batches: [][]*db.Notification{
		{dueNotification(), dueNotification(), dueNotification()},
	}}
	dispatcher := &fakeDispatcher{err: errors.New("provider down")}

	w := New(repo, dispatcher, Config{PollInterval: 10 * time.Millisecond}, zap.NewNop())
	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, func() bool { return dispatcher.count() == 3 })
}

func TestWorker_StopWaitsForLoop(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, &fakeDispatcher{}, Config{PollInterval: 5 * time.Millisecond}, zap.NewNop())
	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(&fakeRepo{}, &fakeDispatcher{}, Config{}, zap.NewNop())
	if w.config.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %v", w.config.PollInterval)
	}
	if w.config.BatchSize != 50 {
		t.Errorf("batch size = %d", w.config.BatchSize)
	}
	if w.config.ClaimFor != 2*time.Minute {
		t.Errorf("claim horizon = %v", w.config.ClaimFor)
	}
}
