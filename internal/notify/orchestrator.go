// Package notify implements the notification orchestration core:
// validation, preference filtering, multi-channel dispatch through the
// channel adapters, and the retry state machine.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/channel"
	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/metrics"
)

// claimHorizon is how long a dispatch cycle owns a notification. The
// synchronous path inserts rows with next_retry_at pushed out by this
// much so the poll worker does not double-dispatch them; a crashed
// process releases its claims when the horizon passes.
const claimHorizon = 2 * time.Minute

// batchWorkers bounds concurrent sends within one batch; batchPacing
// spaces them out so a large batch does not spike the providers.
const (
	batchWorkers = 5
	batchPacing  = 50 * time.Millisecond
)

var (
	ErrNoChannels       = errors.New("notification requests no channels")
	ErrInvalidChannel   = errors.New("unsupported channel")
	ErrMissingContent   = errors.New("missing content for requested channel")
	ErrTemplateNotFound = errors.New("template not found")
)

// Store is the persistence surface the orchestrator needs.
// *db.Repository implements it.
type Store interface {
	CreateNotification(ctx context.Context, n *db.Notification) error
	UpdateDispatchState(ctx context.Context, n *db.Notification) error
}

// TemplateStore looks up active templates by name.
// *db.TemplateRepository implements it.
type TemplateStore interface {
	GetActiveByName(ctx context.Context, name string) (*db.Template, error)
}

// Renderer fills template placeholders. *template.Renderer implements it.
type Renderer interface {
	Render(tmpl string, data map[string]string) string
	RenderHTML(tmpl string, data map[string]string) string
}

// Options tune one submission.
type Options struct {
	// CheckPreferences applies the recipient's preference filter. It
	// only has effect when the recipient carries a user id.
	CheckPreferences bool
}

// Outcome reports what one submission did.
type Outcome struct {
	Notification *db.Notification `json:"notification"`

	Attempted  []db.Channel  `json:"attempted_channels"`
	Succeeded  []db.Channel  `json:"succeeded_channels"`
	Failed     []db.Channel  `json:"failed_channels"`
	Suppressed []Suppression `json:"suppressed_channels,omitempty"`

	// Success means at least one channel went out. PartialSuccess
	// means some but not all attempted channels succeeded.
	Success        bool   `json:"success"`
	PartialSuccess bool   `json:"partial_success"`
	Scheduled      bool   `json:"scheduled"`
	Detail         string `json:"detail,omitempty"`
}

// Orchestrator coordinates the full send pipeline.
type Orchestrator struct {
	store     Store
	templates TemplateStore
	renderer  Renderer
	filter    *PreferenceFilter
	registry  *channel.Registry
	logger    *zap.Logger
	parallel  int
	locks     *keyedMutex

	now func() time.Time
}

// NewOrchestrator wires the orchestrator. filter may be nil to disable
// preference checking entirely; parallel bounds concurrent channel
// dispatches per notification.
func NewOrchestrator(store Store, templates TemplateStore, renderer Renderer, filter *PreferenceFilter, registry *channel.Registry, parallel int, logger *zap.Logger) *Orchestrator {
	if parallel <= 0 {
		parallel = 4
	}
	return &Orchestrator{
		store:     store,
		templates: templates,
		renderer:  renderer,
		filter:    filter,
		registry:  registry,
		logger:    logger,
		parallel:  parallel,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// Send validates, persists and dispatches one notification. Scheduled
// notifications are persisted and left for the worker; everything else
// dispatches synchronously before returning.
func (o *Orchestrator) Send(ctx context.Context, n *db.Notification, opts Options) (*Outcome, error) {
	if err := o.validate(n); err != nil {
		return nil, err
	}
	o.applyDefaults(n)

	for _, ch := range n.Channels {
		metrics.RecordNotificationSubmitted(string(n.Category), string(ch))
	}

	now := o.now()

	// Future sends wait for the worker.
	if n.ScheduledAt != nil && n.ScheduledAt.After(now) {
		if err := o.store.CreateNotification(ctx, n); err != nil {
			return nil, err
		}
		return &Outcome{
			Notification: n,
			Scheduled:    true,
			Detail:       fmt.Sprintf("scheduled for %s", n.ScheduledAt.UTC().Format(time.RFC3339)),
		}, nil
	}

	var suppressed []Suppression
	if opts.CheckPreferences && o.filter != nil && n.Recipient.UserID != "" {
		var allowed []db.Channel
		allowed, suppressed = o.filter.Filter(ctx, n)
		if len(allowed) == 0 {
			n.Status = db.StatusCancelled
			if err := o.store.CreateNotification(ctx, n); err != nil {
				return nil, err
			}
			metrics.RecordFinalStatus(string(db.StatusCancelled))
			return &Outcome{
				Notification: n,
				Suppressed:   suppressed,
				Detail:       "all channels suppressed by user preferences",
			}, nil
		}
		n.Channels = allowed
	}

	// Insert already claimed so the poll worker leaves it to us.
	claim := now.Add(claimHorizon)
	n.NextRetryAt = &claim
	if err := o.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	outcome, err := o.dispatch(ctx, n, n.Channels)
	if err != nil {
		return nil, err
	}
	outcome.Suppressed = suppressed
	return outcome, nil
}

// Redispatch retries the channels of a claimed notification that have
// not succeeded yet. The worker calls this for due pending rows.
func (o *Orchestrator) Redispatch(ctx context.Context, n *db.Notification) (*Outcome, error) {
	remaining := n.RemainingChannels()
	if len(remaining) == 0 {
		// Defensive: all channels already went out, just settle status.
		unlock := o.locks.lock(n.ID)
		defer unlock()
		applyDispatch(n, nil, o.now())
		if err := o.store.UpdateDispatchState(ctx, n); err != nil {
			return nil, err
		}
		return o.buildOutcome(n, nil), nil
	}
	return o.dispatch(ctx, n, remaining)
}

// dispatch runs the channel adapters for the given channels with
// bounded parallelism, then records the results.
func (o *Orchestrator) dispatch(ctx context.Context, n *db.Notification, channels []db.Channel) (*Outcome, error) {
	unlock := o.locks.lock(n.ID)
	defer unlock()

	results := make(map[db.Channel]channel.Result, len(channels))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.parallel)

	for _, ch := range channels {
		wg.Add(1)
		go func(ch db.Channel) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var res channel.Result
			adapter, ok := o.registry.For(ch)
			if !ok {
				res = channel.Result{
					Provider:  string(ch),
					Error:     fmt.Sprintf("no adapter for channel %s", ch),
					ErrorCode: "no_adapter",
					Transient: false,
				}
			} else {
				res = adapter.Send(ctx, n)
			}

			mu.Lock()
			results[ch] = res
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	applyDispatch(n, results, o.now())

	if err := o.store.UpdateDispatchState(ctx, n); err != nil {
		return nil, fmt.Errorf("persist dispatch results: %w", err)
	}

	o.logger.Info("notification dispatched",
		zap.String("notification_id", n.ID.String()),
		zap.String("status", string(n.Status)),
		zap.Int("channels", len(channels)),
		zap.Int("retry_count", n.RetryCount),
	)

	return o.buildOutcome(n, channels), nil
}

func (o *Orchestrator) buildOutcome(n *db.Notification, attempted []db.Channel) *Outcome {
	succeededSet := make(map[db.Channel]bool)
	for _, ch := range n.SucceededChannels() {
		succeededSet[ch] = true
	}

	out := &Outcome{
		Notification: n,
		Attempted:    attempted,
	}
	for _, ch := range attempted {
		if succeededSet[ch] {
			out.Succeeded = append(out.Succeeded, ch)
		} else {
			out.Failed = append(out.Failed, ch)
		}
	}
	out.Success = len(out.Succeeded) > 0
	out.PartialSuccess = out.Success && len(out.Failed) > 0
	return out
}

func (o *Orchestrator) validate(n *db.Notification) error {
	if len(n.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range n.Channels {
		if !db.ValidChannel(ch) {
			return fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
		}
		switch ch {
		case db.ChannelEmail:
			if n.EmailContent == nil {
				return fmt.Errorf("%w: email", ErrMissingContent)
			}
		case db.ChannelSMS:
			if n.SMSContent == nil {
				return fmt.Errorf("%w: sms", ErrMissingContent)
			}
		case db.ChannelPush:
			if n.PushContent == nil {
				return fmt.Errorf("%w: push", ErrMissingContent)
			}
		case db.ChannelInApp:
			if n.InAppContent == nil {
				return fmt.Errorf("%w: in_app", ErrMissingContent)
			}
		}
	}
	return nil
}

func (o *Orchestrator) applyDefaults(n *db.Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Priority == "" {
		n.Priority = db.PriorityNormal
	}
	if n.Category == "" {
		n.Category = db.CategorySystem
	}
	if n.MaxRetries <= 0 {
		n.MaxRetries = db.DefaultMaxRetries
	}
	if n.Status == "" {
		n.Status = db.StatusPending
	}
}

// TemplateRequest asks for a send built from a stored template.
type TemplateRequest struct {
	TemplateName string            `json:"template_name"`
	Recipient    db.Recipient      `json:"recipient"`
	Data         map[string]string `json:"data"`
	Channels     []db.Channel      `json:"channels,omitempty"`
	Priority     db.Priority       `json:"priority,omitempty"`
	ScheduledAt  *time.Time        `json:"scheduled_at,omitempty"`

	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

// defaultTemplateChannels are used when a template request names none.
var defaultTemplateChannels = []db.Channel{db.ChannelEmail, db.ChannelInApp}

// SendFromTemplate renders a stored template and sends the result.
// Channels default to email and in-app, intersected with the channels
// the template actually has content for.
func (o *Orchestrator) SendFromTemplate(ctx context.Context, req TemplateRequest, opts Options) (*Outcome, error) {
	tmpl, err := o.templates.GetActiveByName(ctx, req.TemplateName)
	if err != nil {
		return nil, fmt.Errorf("look up template %q: %w", req.TemplateName, err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, req.TemplateName)
	}

	requested := req.Channels
	if len(requested) == 0 {
		requested = defaultTemplateChannels
	}

	available := make(map[db.Channel]bool)
	for _, ch := range tmpl.TemplateChannels() {
		available[ch] = true
	}

	var channels []db.Channel
	for _, ch := range requested {
		if available[ch] {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("template %q has no content for requested channels", req.TemplateName)
	}

	n := &db.Notification{
		Recipient:     req.Recipient,
		Category:      tmpl.Category,
		Priority:      req.Priority,
		Channels:      channels,
		ScheduledAt:   req.ScheduledAt,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	}

	for _, ch := range channels {
		switch ch {
		case db.ChannelEmail:
			content := &db.EmailContent{
				Subject:  o.renderer.Render(tmpl.EmailSubject, req.Data),
				HTMLBody: o.renderer.RenderHTML(tmpl.EmailHTML, req.Data),
				TextBody: o.renderer.Render(tmpl.EmailText, req.Data),
			}
			if tmpl.ProviderTemplateID != "" {
				content.TemplateID = tmpl.ProviderTemplateID
				content.TemplateData = req.Data
			}
			n.EmailContent = content
		case db.ChannelSMS:
			n.SMSContent = &db.SMSContent{
				Message: o.renderer.Render(tmpl.SMSTemplate, req.Data),
			}
		case db.ChannelPush:
			n.PushContent = &db.PushContent{
				Title: o.renderer.Render(tmpl.PushTitle, req.Data),
				Body:  o.renderer.Render(tmpl.PushBody, req.Data),
				Data:  req.Data,
			}
		case db.ChannelInApp:
			n.InAppContent = &db.InAppContent{
				Title:   o.renderer.Render(tmpl.InAppTitle, req.Data),
				Message: o.renderer.Render(tmpl.InAppMessage, req.Data),
			}
		}
	}

	return o.Send(ctx, n, opts)
}

// BatchOutcome aggregates a batch submission.
type BatchOutcome struct {
	BatchID   string     `json:"batch_id"`
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Scheduled int        `json:"scheduled"`
	Outcomes  []*Outcome `json:"outcomes"`
}

// SendBatch submits many notifications under one batch id with bounded
// concurrency and pacing between starts. Individual failures do not
// stop the batch; invalid entries surface as failed outcomes.
func (o *Orchestrator) SendBatch(ctx context.Context, notifications []*db.Notification, opts Options) *BatchOutcome {
	batchID := uuid.NewString()
	out := &BatchOutcome{
		BatchID:  batchID,
		Total:    len(notifications),
		Outcomes: make([]*Outcome, len(notifications)),
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, batchWorkers)

	for i, n := range notifications {
		n.BatchID = batchID

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, n *db.Notification) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := o.Send(ctx, n, opts)
			if err != nil {
				outcome = &Outcome{
					Notification: n,
					Detail:       err.Error(),
				}
				o.logger.Warn("batch entry rejected",
					zap.String("batch_id", batchID),
					zap.Int("index", i),
					zap.Error(err),
				)
			}
			out.Outcomes[i] = outcome
		}(i, n)

		if i < len(notifications)-1 {
			time.Sleep(batchPacing)
		}
	}
	wg.Wait()

	for _, outcome := range out.Outcomes {
		switch {
		case outcome.Scheduled:
			out.Scheduled++
		case outcome.Success:
			out.Succeeded++
		default:
			out.Failed++
		}
	}

	o.logger.Info("batch processed",
		zap.String("batch_id", batchID),
		zap.Int("total", out.Total),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
		zap.Int("scheduled", out.Scheduled),
	)

	return out
}
