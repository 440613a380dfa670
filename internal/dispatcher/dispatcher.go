// Package dispatcher implements component F: the single entrypoint that
// turns a validated DispatchRequest into a delivery attempt, enforcing
// preference, rate-limit, and session policy before ever calling a channel
// adapter, and recording every step in the History store.
package dispatcher

import (
	"context"
	"hash/fnv"

	"notifyhub/internal/apperr"
	"notifyhub/internal/channels"
	"notifyhub/internal/history"
	"notifyhub/internal/logging"
	"notifyhub/internal/model"
	"notifyhub/internal/preference"
	"notifyhub/internal/ratelimit"
	"notifyhub/internal/templatestore"
	"time"
)

// SessionChecker reports whether a recipient has a live IN_APP session,
// satisfied structurally by *sockethub.Hub.
type SessionChecker interface {
	IsConnected(userID string) bool
}

// Dispatcher is the component F contract.
type Dispatcher struct {
	history     *history.Store
	preferences *preference.Store
	templates   *templatestore.Store
	limiter     *ratelimit.Limiter
	adapters    map[model.Channel]channels.Adapter
	urgentBypassesQuietHours bool

	sessionChecker      SessionChecker
	inAppRequireSession bool

	shards []chan job
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithQuietHoursUrgentBypass controls whether URGENT priority skips the
// recipient's quiet hours window (QUIET_HOURS_URGENT_BYPASS).
func WithQuietHoursUrgentBypass(enabled bool) Option {
	return func(d *Dispatcher) { d.urgentBypassesQuietHours = enabled }
}

// WithInAppSessionPolicy wires the socket hub's presence check and the
// IN_APP_REQUIRE_SESSION flag: when require is true, an IN_APP dispatch to a
// recipient with no connected session is cancelled up front instead of being
// handed to the adapter to hold.
func WithInAppSessionPolicy(checker SessionChecker, require bool) Option {
	return func(d *Dispatcher) {
		d.sessionChecker = checker
		d.inAppRequireSession = require
	}
}

type job struct {
	ctx  context.Context
	req  model.DispatchRequest
	done chan error
}

// New builds a Dispatcher with shardCount single-consumer work queues.
func New(h *history.Store, p *preference.Store, t *templatestore.Store, limiter *ratelimit.Limiter,
	adapters map[model.Channel]channels.Adapter, shardCount int, opts ...Option) *Dispatcher {
	if shardCount <= 0 {
		shardCount = 8
	}
	d := &Dispatcher{
		history:     h,
		preferences: p,
		templates:   t,
		limiter:     limiter,
		adapters:    adapters,
		shards:      make([]chan job, shardCount),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.shards {
		d.shards[i] = make(chan job, 256)
		go d.runShard(d.shards[i])
	}
	return d
}

func shardFor(recipient string, channel model.Channel, n int) int {
	h := fnv.New32a()
	h.Write([]byte(string(channel) + ":" + recipient))
	return int(h.Sum32()) % n
}

func (d *Dispatcher) runShard(queue chan job) {
	for j := range queue {
		j.done <- d.process(j.ctx, j.req)
	}
}

// Dispatch enqueues req onto its (recipient, channel) shard and blocks
// until the attempt completes, returning the final error (if any). Callers
// that want fire-and-forget semantics should call this from their own
// goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.DispatchRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	idx := shardFor(req.Recipient, req.Channel, len(d.shards))
	done := make(chan error, 1)
	select {
	case d.shards[idx] <- job{ctx: ctx, req: req, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validate(req model.DispatchRequest) error {
	if req.NotificationID == "" {
		return apperr.New(apperr.KindValidation, "notificationId is required")
	}
	if !req.Channel.Valid() {
		return apperr.New(apperr.KindValidation, "unknown channel "+string(req.Channel))
	}
	if req.Recipient == "" {
		return apperr.New(apperr.KindValidation, "recipient is required")
	}
	if req.TemplateName == "" && req.Content == "" {
		return apperr.New(apperr.KindValidation, "either templateName or content is required")
	}
	return nil
}

// process runs the full pipeline for a single request:
//  1. idempotent History creation (QUEUED)
//  2. preference lookup and opt-out/channel/category enforcement
//  3. quiet-hours enforcement (URGENT may bypass, opt-out never does)
//  4. rate-limit admission
//  5. IN_APP session-required enforcement
//  6. transition to PROCESSING
//  7. template resolution and rendering
//  8. channel adapter send
//  9. transition to SENT (straight to DELIVERED on a synchronous ack) or
//     FAILED, with FAILED eligible for later retry only when the cause was
//     transient
//
// Steps 2-5 all resolve straight to CANCELLED, the only legal QUEUED exit
// besides PROCESSING, so none of them may run after the PROCESSING
// transition.
func (d *Dispatcher) process(ctx context.Context, req model.DispatchRequest) error {
	record, err := d.history.Create(ctx, req)
	if err != nil {
		return err
	}
	if record.Status != model.StatusQueued {
		// Already past QUEUED (duplicate dispatch of an in-flight id): no-op.
		return nil
	}

	if d.preferences != nil {
		pref, err := d.preferences.GetOrCreate(ctx, req.Recipient)
		if err != nil {
			return d.cancel(ctx, req.NotificationID, apperr.KindInternal, "preference lookup failed: "+err.Error())
		}
		if !preference.IsNotificationAllowed(pref, req.Channel, req.Category) {
			return d.cancel(ctx, req.NotificationID, apperr.KindPreferenceBlocked, "preferences")
		}
		if preference.IsWithinQuietHours(pref, time.Now()) {
			bypass := d.urgentBypassesQuietHours && req.Priority == model.PriorityUrgent
			if !bypass {
				return d.cancel(ctx, req.NotificationID, apperr.KindPreferenceBlocked, "quiet-hours")
			}
		}
	}

	if d.limiter != nil && !d.limiter.AllowAndRecord(ctx, req.Channel, req.Recipient, 1) {
		return d.cancel(ctx, req.NotificationID, apperr.KindRateLimited, "rate-limit")
	}

	if req.Channel == model.ChannelInApp && d.inAppRequireSession && d.sessionChecker != nil && !d.sessionChecker.IsConnected(req.Recipient) {
		return d.cancel(ctx, req.NotificationID, apperr.KindNoSession, "no-session")
	}

	if err := d.history.UpdateStatus(ctx, req.NotificationID, model.StatusProcessing, "dispatcher"); err != nil {
		return err
	}

	if err := d.renderTemplate(ctx, &req); err != nil {
		return d.fail(ctx, req.NotificationID, err)
	}

	adapter, ok := d.adapters[req.Channel]
	if !ok {
		return d.fail(ctx, req.NotificationID, apperr.New(apperr.KindMissingConfig, "no adapter registered for "+string(req.Channel)))
	}

	externalID, delivered, sendErr := adapter.Send(ctx, req)
	if sendErr != nil {
		logging.Warn("dispatcher: send failed id=%s channel=%s: %v", req.NotificationID, req.Channel, sendErr)
		return d.fail(ctx, req.NotificationID, sendErr)
	}

	if err := d.history.MarkSent(ctx, req.NotificationID, externalID); err != nil {
		return err
	}
	if delivered {
		if err := d.history.UpdateStatus(ctx, req.NotificationID, model.StatusDelivered, "dispatcher"); err != nil {
			return err
		}
	}
	return nil
}

// renderTemplate resolves req.TemplateName against the active template and
// overwrites req.Subject/req.Content with the rendered result, persisting
// the rendered values onto the History record. A missing or inactive
// template falls back to whatever inline subject/content the request
// already carried; only a missing template with no inline fallback fails
// the attempt.
func (d *Dispatcher) renderTemplate(ctx context.Context, req *model.DispatchRequest) error {
	if req.TemplateName == "" || d.templates == nil {
		return nil
	}

	tmpl, err := d.templates.GetByName(ctx, req.TemplateName)
	if err != nil {
		if (apperr.Is(err, apperr.KindTemplateNotFound) || apperr.Is(err, apperr.KindTemplateInactive)) && req.Content != "" {
			logging.Warn("dispatcher: template %q unavailable for %s, falling back to inline content: %v", req.TemplateName, req.NotificationID, err)
			return nil
		}
		return err
	}

	req.Subject = templatestore.Render(tmpl.SubjectTemplate, req.TemplateVariables)
	req.Content = templatestore.Render(tmpl.ContentTemplate, req.TemplateVariables)
	return d.history.UpdateRenderedContent(ctx, req.NotificationID, req.Subject, req.Content)
}

func (d *Dispatcher) fail(ctx context.Context, notificationID string, cause error) error {
	if err := d.history.MarkFailed(ctx, notificationID, cause.Error(), "", apperr.Retryable(cause)); err != nil {
		return err
	}
	return cause
}

func (d *Dispatcher) cancel(ctx context.Context, notificationID string, kind apperr.Kind, reason string) error {
	if err := d.history.Cancel(ctx, notificationID, reason); err != nil {
		return err
	}
	return apperr.New(kind, reason)
}
