package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/circuitbreaker"
	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/notify"
)

// mockOrchestrator returns canned outcomes and records what it got.
type mockOrchestrator struct {
	lastNotification *db.Notification
	lastOptions      notify.Options
	lastTemplate     notify.TemplateRequest

	sendErr error
	outcome *notify.Outcome
	batch   *notify.BatchOutcome
}

func (m *mockOrchestrator) Send(ctx context.Context, n *db.Notification, opts notify.Options) (*notify.Outcome, error) {
	m.lastNotification = n
	m.lastOptions = opts
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	if m.outcome != nil {
		return m.outcome, nil
	}
	n.ID = uuid.New()
	n.Status = db.StatusSent
	return &notify.Outcome{Notification: n, Success: true}, nil
}

func (m *mockOrchestrator) SendFromTemplate(ctx context.Context, req notify.TemplateRequest, opts notify.Options) (*notify.Outcome, error) {
	m.lastTemplate = req
	m.lastOptions = opts
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	n := &db.Notification{ID: uuid.New(), Status: db.StatusSent, Recipient: req.Recipient}
	return &notify.Outcome{Notification: n, Success: true}, nil
}

func (m *mockOrchestrator) SendBatch(ctx context.Context, notifications []*db.Notification, opts notify.Options) *notify.BatchOutcome {
	m.lastOptions = opts
	if m.batch != nil {
		return m.batch
	}
	return &notify.BatchOutcome{BatchID: uuid.NewString(), Total: len(notifications), Succeeded: len(notifications)}
}

type mockInbox struct {
	notifications []*db.Notification
	unread        int
	markedRead    bool
	allRead       int64
	deleted       bool
}

func (m *mockInbox) List(ctx context.Context, q db.InboxQuery) ([]*db.Notification, error) {
	return m.notifications, nil
}

func (m *mockInbox) UnreadCount(ctx context.Context, userID string, userType db.UserType) (int, error) {
	return m.unread, nil
}

func (m *mockInbox) MarkRead(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	return m.markedRead, nil
}

func (m *mockInbox) MarkAllRead(ctx context.Context, userID string, userType db.UserType) (int64, error) {
	return m.allRead, nil
}

func (m *mockInbox) Delete(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	return m.deleted, nil
}

type mockStore struct {
	notifications map[uuid.UUID]*db.Notification
	delivered     bool
	cancelled     bool
	opens         int
	clicks        int
}

func newMockStore() *mockStore {
	return &mockStore{notifications: make(map[uuid.UUID]*db.Notification)}
}

func (m *mockStore) GetNotification(ctx context.Context, id uuid.UUID) (*db.Notification, error) {
	n, ok := m.notifications[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return n, nil
}

func (m *mockStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.delivered, nil
}

func (m *mockStore) CancelScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.cancelled, nil
}

func (m *mockStore) RecordOpen(ctx context.Context, id uuid.UUID) error {
	m.opens++
	return nil
}

func (m *mockStore) RecordClick(ctx context.Context, id uuid.UUID) error {
	m.clicks++
	return nil
}

type mockPrefs struct {
	prefs map[string]*db.Preferences
	saved *db.Preferences
}

func (m *mockPrefs) GetPreferences(ctx context.Context, userID string) (*db.Preferences, error) {
	return m.prefs[userID], nil
}

func (m *mockPrefs) UpsertPreferences(ctx context.Context, p *db.Preferences) error {
	m.saved = p
	return nil
}

type mockTemplates struct {
	saved          []*db.Template
	list           []*db.Template
	lastActiveOnly bool
	err            error
}

func (m *mockTemplates) Upsert(ctx context.Context, t *db.Template) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, t)
	return nil
}

func (m *mockTemplates) List(ctx context.Context, activeOnly bool) ([]*db.Template, error) {
	m.lastActiveOnly = activeOnly
	return m.list, m.err
}

type handlerDeps struct {
	orchestrator *mockOrchestrator
	inbox        *mockInbox
	store        *mockStore
	prefs        *mockPrefs
	templates    *mockTemplates
	breakers     *circuitbreaker.Registry
}

func newTestHandler() (*Handler, *handlerDeps) {
	deps := &handlerDeps{
		orchestrator: &mockOrchestrator{},
		inbox:        &mockInbox{},
		store:        newMockStore(),
		prefs:        &mockPrefs{prefs: make(map[string]*db.Preferences)},
		templates:    &mockTemplates{},
		breakers:     circuitbreaker.NewRegistry(zap.NewNop()),
	}
	h := NewHandler(zap.NewNop(), deps.orchestrator, deps.inbox, deps.store, deps.prefs, deps.templates, deps.breakers, nil)
	return h, deps
}

func sendBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(SendRequest{
		Recipient: db.Recipient{UserID: "user-1", Email: "amara@example.com"},
		Channels:  []db.Channel{db.ChannelEmail},
		Category:  db.CategoryBookingConfirmation,
		EmailContent: &db.EmailContent{
			Subject:  "Booking confirmed",
			TextBody: "See you soon",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestSendNotification_Success(t *testing.T) {
	h, deps := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/notifications", sendBody(t))
	rec := httptest.NewRecorder()
	h.SendNotification(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !deps.orchestrator.lastOptions.CheckPreferences {
		t.Error("API sends should check preferences by default")
	}

	var out notify.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success {
		t.Errorf("outcome: %+v", out)
	}
}

func TestSendNotification_SkipPreferences(t *testing.T) {
	h, deps := newTestHandler()

	body, _ := json.Marshal(SendRequest{
		Recipient:       db.Recipient{UserID: "user-1", Email: "a@b.c"},
		Channels:        []db.Channel{db.ChannelEmail},
		EmailContent:    &db.EmailContent{Subject: "s", TextBody: "b"},
		SkipPreferences: true,
	})

	req := httptest.NewRequest("POST", "/api/v1/notifications", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	h.SendNotification(rec, req)

	if deps.orchestrator.lastOptions.CheckPreferences {
		t.Error("skip_preferences should disable the preference filter")
	}
}

func TestSendNotification_MalformedBody(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/notifications", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.SendNotification(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %s", ct)
	}
}

func TestSendNotification_ValidationErrorIs400(t *testing.T) {
	h, deps := newTestHandler()
	deps.orchestrator.sendErr = notify.ErrMissingContent

	req := httptest.NewRequest("POST", "/api/v1/notifications", sendBody(t))
	rec := httptest.NewRecorder()
	h.SendNotification(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSendNotification_ScheduledIs202(t *testing.T) {
	h, deps := newTestHandler()
	deps.orchestrator.outcome = &notify.Outcome{
		Notification: &db.Notification{ID: uuid.New(), Status: db.StatusPending},
		Scheduled:    true,
	}

	req := httptest.NewRequest("POST", "/api/v1/notifications", sendBody(t))
	rec := httptest.NewRecorder()
	h.SendNotification(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202 for scheduled sends", rec.Code)
	}
}

func TestSendFromTemplate(t *testing.T) {
	h, deps := newTestHandler()

	body, _ := json.Marshal(map[string]interface{}{
		"template_name": "booking_confirmed",
		"recipient":     map[string]string{"user_id": "user-1", "email": "a@b.c"},
		"data":          map[string]string{"booking_id": "BK-42"},
	})

	req := httptest.NewRequest("POST", "/api/v1/notifications/template", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	h.SendFromTemplate(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if deps.orchestrator.lastTemplate.TemplateName != "booking_confirmed" {
		t.Errorf("template = %q", deps.orchestrator.lastTemplate.TemplateName)
	}
	if deps.orchestrator.lastTemplate.Data["booking_id"] != "BK-42" {
		t.Errorf("data = %v", deps.orchestrator.lastTemplate.Data)
	}
}

func TestSendFromTemplate_MissingName(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/notifications/template", bytes.NewBufferString("{}"))
	rec := httptest.NewRecorder()
	h.SendFromTemplate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSendFromTemplate_NotFoundIs404(t *testing.T) {
	h, deps := newTestHandler()
	deps.orchestrator.sendErr = notify.ErrTemplateNotFound

	body, _ := json.Marshal(map[string]string{"template_name": "missing"})
	req := httptest.NewRequest("POST", "/api/v1/notifications/template", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	h.SendFromTemplate(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSendBatch(t *testing.T) {
	h, _ := newTestHandler()

	body, _ := json.Marshal(BatchRequest{
		Notifications: []SendRequest{
			{
				Recipient:    db.Recipient{UserID: "u1", Email: "a@b.c"},
				Channels:     []db.Channel{db.ChannelEmail},
				EmailContent: &db.EmailContent{Subject: "s", TextBody: "b"},
			},
			{
				Recipient:    db.Recipient{UserID: "u2", Email: "d@e.f"},
				Channels:     []db.Channel{db.ChannelEmail},
				EmailContent: &db.EmailContent{Subject: "s", TextBody: "b"},
			},
		},
	})

	req := httptest.NewRequest("POST", "/api/v1/notifications/batch", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	h.SendBatch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var out notify.BatchOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 2 || out.BatchID == "" {
		t.Errorf("batch outcome: %+v", out)
	}
}

func TestSendBatch_Empty(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/notifications/batch", bytes.NewBufferString(`{"notifications":[]}`))
	rec := httptest.NewRecorder()
	h.SendBatch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

// withPathID routes a request through chi so URL params resolve.
func withPathID(h http.HandlerFunc, method, pattern, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestGetNotification(t *testing.T) {
	h, deps := newTestHandler()
	id := uuid.New()
	deps.store.notifications[id] = &db.Notification{ID: id, Status: db.StatusSent}

	rec := withPathID(h.GetNotification, "GET", "/notifications/{id}", "/notifications/"+id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = withPathID(h.GetNotification, "GET", "/notifications/{id}", "/notifications/"+uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for unknown id", rec.Code)
	}

	rec = withPathID(h.GetNotification, "GET", "/notifications/{id}", "/notifications/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for bad id", rec.Code)
	}
}

func TestCancelNotification(t *testing.T) {
	h, deps := newTestHandler()
	id := uuid.New()

	deps.store.cancelled = true
	rec := withPathID(h.CancelNotification, "POST", "/notifications/{id}/cancel", "/notifications/"+id.String()+"/cancel")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	deps.store.cancelled = false
	rec = withPathID(h.CancelNotification, "POST", "/notifications/{id}/cancel", "/notifications/"+id.String()+"/cancel")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, dispatched notifications cannot be cancelled", rec.Code)
	}
}

func TestMarkDelivered(t *testing.T) {
	h, deps := newTestHandler()
	id := uuid.New()

	deps.store.delivered = true
	rec := withPathID(h.MarkDelivered, "POST", "/notifications/{id}/delivered", "/notifications/"+id.String()+"/delivered")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	deps.store.delivered = false
	rec = withPathID(h.MarkDelivered, "POST", "/notifications/{id}/delivered", "/notifications/"+id.String()+"/delivered")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, only sent notifications can be delivered", rec.Code)
	}
}

func TestTrackOpenAndClick(t *testing.T) {
	h, deps := newTestHandler()
	id := uuid.New()

	rec := withPathID(h.TrackOpen, "POST", "/notifications/{id}/open", "/notifications/"+id.String()+"/open")
	if rec.Code != http.StatusNoContent {
		t.Errorf("open status = %d", rec.Code)
	}
	rec = withPathID(h.TrackClick, "POST", "/notifications/{id}/click", "/notifications/"+id.String()+"/click")
	if rec.Code != http.StatusNoContent {
		t.Errorf("click status = %d", rec.Code)
	}
	if deps.store.opens != 1 || deps.store.clicks != 1 {
		t.Errorf("opens=%d clicks=%d", deps.store.opens, deps.store.clicks)
	}
}

func TestListInbox(t *testing.T) {
	h, deps := newTestHandler()
	deps.inbox.notifications = []*db.Notification{
		{ID: uuid.New(), Status: db.StatusSent},
	}

	req := httptest.NewRequest("GET", "/api/v1/inbox?user_id=user-1&unread_only=true", nil)
	rec := httptest.NewRecorder()
	h.ListInbox(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d", resp.Count)
	}
}

func TestListInbox_MissingUserID(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/api/v1/inbox", nil)
	rec := httptest.NewRecorder()
	h.ListInbox(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUnreadCount(t *testing.T) {
	h, deps := newTestHandler()
	deps.inbox.unread = 4

	req := httptest.NewRequest("GET", "/api/v1/inbox/unread-count?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	h.UnreadCount(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["unread"] != 4 {
		t.Errorf("unread = %d", resp["unread"])
	}
}

func TestMarkRead(t *testing.T) {
	h, deps := newTestHandler()
	id := uuid.New()

	deps.inbox.markedRead = true
	rec := withPathID(h.MarkRead, "POST", "/inbox/{id}/read", "/inbox/"+id.String()+"/read?user_id=user-1")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	deps.inbox.markedRead = false
	rec = withPathID(h.MarkRead, "POST", "/inbox/{id}/read", "/inbox/"+id.String()+"/read?user_id=user-1")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for foreign or missing notification", rec.Code)
	}

	rec = withPathID(h.MarkRead, "POST", "/inbox/{id}/read", "/inbox/"+id.String()+"/read")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d without user_id", rec.Code)
	}
}

func TestDeleteInboxItem(t *testing.T) {
	h, deps := newTestHandler()
	id := uuid.New()

	deps.inbox.deleted = true
	rec := withPathID(h.DeleteInboxItem, "DELETE", "/inbox/{id}", "/inbox/"+id.String()+"?user_id=user-1")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestGetPreferences_DefaultsWhenMissing(t *testing.T) {
	h, _ := newTestHandler()

	rec := withPathID(h.GetPreferences, "GET", "/preferences/{user_id}", "/preferences/user-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var prefs db.Preferences
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatal(err)
	}
	if !prefs.EmailEnabled {
		t.Error("defaults should enable email")
	}
	if allowed, ok := prefs.Categories[db.CategoryMarketing]; !ok || allowed {
		t.Error("defaults should opt out of marketing")
	}
}

func TestUpdatePreferences(t *testing.T) {
	h, deps := newTestHandler()

	body, _ := json.Marshal(db.Preferences{EmailEnabled: true, SMSEnabled: false})
	r := chi.NewRouter()
	r.Put("/preferences/{user_id}", h.UpdatePreferences)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("PUT", "/preferences/user-9", bytes.NewBuffer(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if deps.prefs.saved == nil || deps.prefs.saved.UserID != "user-9" {
		t.Errorf("saved = %+v, path user id must win", deps.prefs.saved)
	}
}

func TestListTemplates(t *testing.T) {
	h, deps := newTestHandler()
	deps.templates.list = []*db.Template{
		{ID: uuid.New(), Name: "booking_confirmed", Active: true},
		{ID: uuid.New(), Name: "welcome", Active: true},
	}

	req := httptest.NewRequest("GET", "/templates?active_only=true", nil)
	rec := httptest.NewRecorder()
	h.ListTemplates(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !deps.templates.lastActiveOnly {
		t.Error("active_only=true should be passed to the store")
	}

	var resp struct {
		Templates []*db.Template `json:"templates"`
		Count     int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Templates) != 2 {
		t.Errorf("count = %d, templates = %d, want 2", resp.Count, len(resp.Templates))
	}
}

func TestListTemplates_EmptyIsNotNull(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest("GET", "/templates", nil)
	rec := httptest.NewRecorder()
	h.ListTemplates(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"templates":[]`)) {
		t.Errorf("empty list should marshal as [], got %s", rec.Body.String())
	}
}

func TestUpsertTemplate_PathNameWins(t *testing.T) {
	h, deps := newTestHandler()

	body, _ := json.Marshal(db.Template{
		Name:         "something-else",
		Category:     db.CategoryBookingUpdate,
		EmailSubject: "Your order shipped",
		Active:       true,
	})
	r := chi.NewRouter()
	r.Put("/templates/{name}", h.UpsertTemplate)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("PUT", "/templates/booking_confirmed", bytes.NewBuffer(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(deps.templates.saved) != 1 {
		t.Fatalf("saved %d templates, want 1", len(deps.templates.saved))
	}
	saved := deps.templates.saved[0]
	if saved.Name != "booking_confirmed" {
		t.Errorf("name = %s, path name must win", saved.Name)
	}
	if saved.ID == uuid.Nil {
		t.Error("a missing id should be generated")
	}
}

func TestUpsertTemplate_MalformedBody(t *testing.T) {
	h, _ := newTestHandler()

	r := chi.NewRouter()
	r.Put("/templates/{name}", h.UpsertTemplate)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("PUT", "/templates/booking_confirmed", bytes.NewBufferString("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListCircuitBreakers(t *testing.T) {
	h, deps := newTestHandler()
	deps.breakers.For("twilio").RecordFailure()
	deps.breakers.For("postmark")

	req := httptest.NewRequest("GET", "/admin/circuit-breakers", nil)
	rec := httptest.NewRecorder()
	h.ListCircuitBreakers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Breakers []circuitbreaker.Stats `json:"breakers"`
		Count    int                    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
}

func TestResetCircuitBreaker(t *testing.T) {
	h, deps := newTestHandler()

	cb := deps.breakers.For("twilio")
	for i := 0; i < 5; i++ {
		cb.Allow()
		cb.RecordFailure()
	}
	if cb.GetState() != circuitbreaker.StateOpen {
		t.Fatal("breaker should be open before the reset")
	}

	rec := withPathID(h.ResetCircuitBreaker, "POST",
		"/admin/circuit-breakers/{provider}/reset",
		"/admin/circuit-breakers/twilio/reset")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cb.GetState() != circuitbreaker.StateClosed {
		t.Error("breaker should be closed after the reset")
	}
}

func TestResetCircuitBreaker_UnknownProvider(t *testing.T) {
	h, _ := newTestHandler()

	rec := withPathID(h.ResetCircuitBreaker, "POST",
		"/admin/circuit-breakers/{provider}/reset",
		"/admin/circuit-breakers/nobody/reset")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
