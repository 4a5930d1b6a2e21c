// Package notify turns transaction workflow events into in-app notifications
// and email for the organisations that have to act on them.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/identity"
	"procuredata.io/internal/mail"
	"procuredata.io/internal/obs"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultConcurrency = 8
)

// Request is the dispatcher input, as posted to the notification function.
type Request struct {
	TransactionID string `json:"transactionId"`
	EventType     string `json:"eventType"`
}

// Result reports what a dispatch did. Failed email sends do not make it unsuccessful.
type Result struct {
	Success    bool            `json:"success"`
	Event      dataspace.Event `json:"event"`
	Recipients int             `json:"recipients"`
	Sent       int             `json:"sent"`
	Failed     int             `json:"failed"`
}

// Publisher receives each stored notification for realtime delivery.
type Publisher interface {
	Publish(n dataspace.Notification)
}

type Options struct {
	SiteURL     string
	SendTimeout time.Duration
	Concurrency int
	Publisher   Publisher
	Logger      *zap.Logger
}

// Dispatcher fans a workflow event out to in-app notifications and email.
type Dispatcher struct {
	store     dataspace.Store
	directory identity.Directory
	sender    mail.Sender
	opts      Options
}

var _ dataspace.Notifier = (*Dispatcher)(nil)

func NewDispatcher(store dataspace.Store, directory identity.Directory, sender mail.Sender, opts Options) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	opts.SiteURL = strings.TrimRight(opts.SiteURL, "/")
	return &Dispatcher{store: store, directory: directory, sender: sender, opts: opts}
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.opts.Logger != nil {
		return d.opts.Logger
	}
	return obs.Logger()
}

// Notify adapts Dispatch to the lifecycle service.
func (d *Dispatcher) Notify(ctx context.Context, transactionID string, event dataspace.Event) error {
	_, err := d.Dispatch(ctx, Request{TransactionID: transactionID, EventType: string(event)})
	return err
}

// Dispatch writes one notification per audience member, then emails every
// member with a known address. Calls are not deduplicated.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	txID := strings.TrimSpace(req.TransactionID)
	if txID == "" || strings.TrimSpace(req.EventType) == "" {
		return Result{}, fmt.Errorf("%w: transactionId and eventType are required", dataspace.ErrInvalidRequest)
	}
	event, err := dataspace.ParseEvent(req.EventType)
	if err != nil {
		return Result{}, err
	}
	details, err := d.store.Transactions().Details(ctx, txID)
	if err != nil {
		return Result{}, err
	}

	audience, orgID, err := d.audience(ctx, event, details.Transaction)
	if err != nil {
		return Result{}, err
	}
	log := d.logger().With(
		zap.String("transaction_id", txID),
		zap.String("event", string(event)))

	if len(audience) > 0 {
		if err := d.createInApp(ctx, event, details, audience, orgID); err != nil {
			return Result{}, err
		}
	}

	recipients, unresolved := d.resolveEmails(ctx, log, event, audience)
	res := Result{Success: true, Event: event, Recipients: len(recipients) + unresolved, Failed: unresolved}
	if res.Recipients == 0 {
		log.Info("no email recipients for notification", zap.Int("audience", len(audience)))
		return res, nil
	}

	sent, failed := d.sendAll(ctx, log, event, details, recipients)
	res.Sent, res.Failed = sent, res.Failed+failed
	log.Info("notification dispatched",
		zap.Int("recipients", res.Recipients),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed))
	return res, nil
}

// audience returns the user ids to notify and the organisation the in-app rows belong to.
func (d *Dispatcher) audience(ctx context.Context, event dataspace.Event, tx dataspace.DataTransaction) ([]string, string, error) {
	var orgID string
	switch event {
	case dataspace.EventCreated:
		orgID = tx.SubjectOrgID
	case dataspace.EventPreApproved:
		orgID = tx.HolderOrgID
	default:
		if tx.RequestedBy == "" {
			return nil, tx.ConsumerOrgID, nil
		}
		return []string{tx.RequestedBy}, tx.ConsumerOrgID, nil
	}
	members, err := d.store.Memberships().ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, "", err
	}
	seen := make(map[string]struct{}, len(members))
	users := make([]string, 0, len(members))
	for _, m := range members {
		if _, dup := seen[m.UserID]; dup || m.UserID == "" {
			continue
		}
		seen[m.UserID] = struct{}{}
		users = append(users, m.UserID)
	}
	return users, orgID, nil
}

func (d *Dispatcher) createInApp(ctx context.Context, event dataspace.Event, details dataspace.TransactionDetails, users []string, orgID string) error {
	text := inApp(event, details)
	kind := dataspace.NotificationInfo
	if event == dataspace.EventDenied {
		kind = dataspace.NotificationWarning
	}
	rows := make([]dataspace.Notification, 0, len(users))
	for _, uid := range users {
		rows = append(rows, dataspace.Notification{
			UserID:         uid,
			OrganizationID: orgID,
			Title:          text.title,
			Message:        text.message,
			Type:           kind,
			Link:           "/requests/" + details.Transaction.ID,
		})
	}
	stored, err := d.store.Notifications().Insert(ctx, rows)
	if err != nil {
		return err
	}
	obs.NotificationsCreated.WithLabelValues(string(event)).Add(float64(len(stored)))
	if d.opts.Publisher != nil {
		for _, n := range stored {
			d.opts.Publisher.Publish(n)
		}
	}
	return nil
}

type recipient struct {
	email string
	name  string
}

// resolveEmails looks up the audience's addresses. Users the directory could
// not resolve are logged and returned as a count; they never abort the dispatch.
func (d *Dispatcher) resolveEmails(ctx context.Context, log *zap.Logger, event dataspace.Event, users []string) ([]recipient, int) {
	if len(users) == 0 {
		return nil, 0
	}
	found, err := d.directory.GetUsers(ctx, users)
	failed := identity.FailedIDs(err, users)
	if len(failed) > 0 {
		obs.NotificationEmails.WithLabelValues(string(event), "failed").Add(float64(len(failed)))
		log.Warn("notification recipients unresolved", zap.Strings("user_ids", failed), zap.Error(err))
	}
	out := make([]recipient, 0, len(users))
	for _, uid := range users {
		u, ok := found[uid]
		if !ok || strings.TrimSpace(u.Email) == "" {
			continue
		}
		name := u.FullName
		if name == "" {
			name, _, _ = strings.Cut(u.Email, "@")
		}
		out = append(out, recipient{email: u.Email, name: name})
	}
	return out, len(failed)
}

// sendAll emails every recipient concurrently. Individual failures are counted
// and logged; none is retried.
func (d *Dispatcher) sendAll(ctx context.Context, log *zap.Logger, event dataspace.Event, details dataspace.TransactionDetails, recipients []recipient) (int, int) {
	var sent, failed atomic.Int64
	subject := inApp(event, details).title
	link := d.opts.SiteURL + "/requests/" + details.Transaction.ID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, r := range recipients {
		g.Go(func() error {
			html, err := renderEmail(event, emailData{
				RecipientName:   r.name,
				ProductName:     details.ProductName,
				ConsumerOrgName: details.ConsumerOrgName,
				SubjectOrgName:  details.SubjectOrgName,
				HolderOrgName:   details.HolderOrgName,
				Purpose:         details.Transaction.Purpose,
				Link:            link,
			})
			if err == nil {
				sendCtx, cancel := context.WithTimeout(gctx, d.opts.SendTimeout)
				err = d.sender.Send(sendCtx, mail.Message{To: r.email, Subject: subject, HTML: html})
				cancel()
			}
			if err != nil {
				failed.Add(1)
				obs.NotificationEmails.WithLabelValues(string(event), "failed").Inc()
				log.Warn("notification email failed", zap.String("to", r.email), zap.Error(err))
				return nil
			}
			sent.Add(1)
			obs.NotificationEmails.WithLabelValues(string(event), "sent").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load()), int(failed.Load())
}
