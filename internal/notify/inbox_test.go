package notify

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/db"
)

type fakeInboxStore struct {
	lastQuery db.InboxQuery
	markRead  bool
	allRead   int64
	unread    int
}

func (s *fakeInboxStore) ListInbox(ctx context.Context, q db.InboxQuery) ([]*db.Notification, error) {
	s.lastQuery = q
	return nil, nil
}

func (s *fakeInboxStore) UnreadCount(ctx context.Context, userID string, userType db.UserType) (int, error) {
	return s.unread, nil
}

func (s *fakeInboxStore) MarkRead(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	return s.markRead, nil
}

func (s *fakeInboxStore) MarkAllRead(ctx context.Context, userID string, userType db.UserType) (int64, error) {
	return s.allRead, nil
}

func (s *fakeInboxStore) SoftDelete(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	return true, nil
}

func TestInboxList_PageClamping(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		skip      int
		wantLimit int
		wantSkip  int
	}{
		{"defaults", 0, 0, 20, 0},
		{"negative skip", 10, -5, 10, 0},
		{"over max", 500, 40, 100, 40},
		{"in range", 50, 20, 50, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeInboxStore{}
			inbox := NewInbox(store, zap.NewNop())

			_, err := inbox.List(context.Background(), db.InboxQuery{
				UserID: "user-1",
				Limit:  tt.limit,
				Skip:   tt.skip,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store.lastQuery.Limit != tt.wantLimit || store.lastQuery.Skip != tt.wantSkip {
				t.Errorf("query = %+v, want limit=%d skip=%d", store.lastQuery, tt.wantLimit, tt.wantSkip)
			}
		})
	}
}

func TestInboxMarkRead(t *testing.T) {
	store := &fakeInboxStore{markRead: true}
	inbox := NewInbox(store, zap.NewNop())

	ok, err := inbox.MarkRead(context.Background(), uuid.New(), "user-1")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestInboxMarkAllRead(t *testing.T) {
	store := &fakeInboxStore{allRead: 7}
	inbox := NewInbox(store, zap.NewNop())

	count, err := inbox.MarkAllRead(context.Background(), "user-1", db.UserTypeUser)
	if err != nil || count != 7 {
		t.Fatalf("count=%d err=%v", count, err)
	}
}
