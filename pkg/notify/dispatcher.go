package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/communities"
	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// DispatchStore is the persistence the dispatcher needs: preference
// filtering, subscription lookup and cleanup, and notification inserts.
// Satisfied by PostgresStore.
type DispatchStore interface {
	PreferenceSource
	SubscriptionsForUsers(ctx context.Context, userIDs []int64) ([]*PushSubscription, error)
	DeleteSubscriptionByID(ctx context.Context, id int64) error
	InsertNotifications(ctx context.Context, notifs []*Notification) error
	TouchSubscriptions(ctx context.Context, ids []int64) error
}

// Options tunes dispatch behavior.
type Options struct {
	// TitleMaxLen is the rune budget for the post title inside the push
	// body; longer titles are cut and suffixed with "...".
	TitleMaxLen int
	// Concurrency bounds the parallel push sends per dispatch.
	Concurrency int
	// IconURL and URLPrefix fill the notify payload's icon and click
	// target.
	IconURL   string
	URLPrefix string
}

// Dispatcher fans a post event out to in-app notifications and web push.
// Every public method is best-effort: errors are logged, never returned.
type Dispatcher struct {
	dir     Directory
	store   DispatchStore
	sender  PushSender
	opts    Options
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(dir Directory, store DispatchStore, sender PushSender, opts Options, metrics *observability.Metrics, logger *observability.Logger) *Dispatcher {
	if opts.TitleMaxLen <= 0 {
		opts.TitleMaxLen = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	return &Dispatcher{
		dir:     dir,
		store:   store,
		sender:  sender,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// Dispatch resolves the recipient set once and feeds both delivery
// channels from it. It never returns an error; a caller cannot tell "no
// recipients" from "resolution failed", and post creation must not care.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	start := time.Now()
	logger := d.logger.WithFields(map[string]interface{}{
		"post_id":      ev.PostID,
		"community_id": ev.CommunityID,
	})

	community, err := d.dir.GetCommunity(ctx, ev.CommunityID)
	if err != nil {
		logger.WithError(err).Error("notification dispatch: failed to load community")
		d.countDispatch("error")
		return
	}

	author, err := d.dir.GetUser(ctx, ev.AuthorID)
	if err != nil {
		logger.WithError(err).Error("notification dispatch: failed to load author")
		d.countDispatch("error")
		return
	}

	recipients, err := resolveForCommunity(ctx, d.dir, d.store, community, ev.AuthorID)
	if err != nil {
		logger.WithError(err).Error("notification dispatch: recipient resolution failed")
		d.countDispatch("error")
		return
	}

	if d.metrics != nil {
		d.metrics.RecipientsResolved.Observe(float64(len(recipients)))
	}

	if len(recipients) == 0 {
		d.countDispatch("empty")
		return
	}

	if err := d.PersistNotifications(ctx, ev, community, author, recipients); err != nil {
		logger.WithError(err).Error("notification dispatch: persist failed")
	}

	if err := d.DispatchPush(ctx, ev, community, author, recipients); err != nil {
		logger.WithError(err).Error("notification dispatch: push failed")
	}

	d.countDispatch("ok")
	if d.metrics != nil {
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}
}

// PersistNotifications bulk-inserts one unread in-app notification per
// recipient.
func (d *Dispatcher) PersistNotifications(ctx context.Context, ev Event, community *communities.Community, author *auth.User, recipients []int64) error {
	if len(recipients) == 0 {
		return nil
	}

	payload, err := json.Marshal(notificationPayload{
		PostID:        ev.PostID,
		CommunityID:   ev.CommunityID,
		AuthorName:    author.Name,
		CommunityName: community.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	title, body := d.messageText(ev, community, author)

	notifs := make([]*Notification, 0, len(recipients))
	for _, userID := range recipients {
		notifs = append(notifs, &Notification{
			UserID:  userID,
			Title:   title,
			Body:    body,
			Payload: payload,
		})
	}

	if err := d.store.InsertNotifications(ctx, notifs); err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.NotificationsPersisted.Add(float64(len(notifs)))
	}
	return nil
}

// DispatchPush sends the shared payload to every subscription of every
// recipient, concurrently and independently. A subscription the provider
// reports gone (410) is deleted; any other failure only logs.
func (d *Dispatcher) DispatchPush(ctx context.Context, ev Event, community *communities.Community, author *auth.User, recipients []int64) error {
	if !d.sender.Enabled() {
		d.logger.Debug("push delivery disabled, no VAPID credentials")
		return nil
	}
	if len(recipients) == 0 {
		return nil
	}

	subs, err := d.store.SubscriptionsForUsers(ctx, recipients)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	title, body := d.messageText(ev, community, author)
	payload, err := NewNotifyMessage(NotifyData{
		Title: title,
		Body:  body,
		Icon:  d.opts.IconURL,
		URL:   fmt.Sprintf("%s/communities/%d/posts/%d", d.opts.URLPrefix, ev.CommunityID, ev.PostID),
	})
	if err != nil {
		return fmt.Errorf("failed to build push payload: %w", err)
	}

	var delivered syncIDs

	g := &errgroup.Group{}
	g.SetLimit(d.opts.Concurrency)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			d.sendOne(ctx, sub, payload, &delivered)
			// Sibling sends must not be cancelled by one failure.
			return nil
		})
	}
	g.Wait()

	if err := d.store.TouchSubscriptions(ctx, delivered.ids()); err != nil {
		d.logger.WithError(err).Warn("failed to record subscription use")
	}

	return nil
}

func (d *Dispatcher) sendOne(ctx context.Context, sub *PushSubscription, payload []byte, delivered *syncIDs) {
	start := time.Now()
	status, err := d.sender.Send(ctx, sub, payload)
	if d.metrics != nil {
		d.metrics.PushDeliveryDuration.Observe(time.Since(start).Seconds())
	}

	logger := d.logger.WithFields(map[string]interface{}{
		"subscription_id": sub.ID,
		"user_id":         sub.UserID,
	})

	if err != nil {
		logger.WithError(err).Warn("push delivery failed")
		d.countPush("error")
		return
	}

	switch {
	case status == http.StatusGone:
		// The provider says this subscription no longer exists. Remove
		// exactly this row; the user's other subscriptions stand.
		if err := d.store.DeleteSubscriptionByID(ctx, sub.ID); err != nil {
			logger.WithError(err).Warn("failed to delete gone subscription")
		} else if d.metrics != nil {
			d.metrics.SubscriptionsPrunedTotal.Inc()
		}
		d.countPush("gone")
	case status >= 200 && status < 300:
		delivered.add(sub.ID)
		d.countPush("ok")
	default:
		logger.WithField("status", status).Warn("push provider rejected delivery")
		d.countPush("rejected")
	}
}

// messageText builds the shared title and body for both channels.
func (d *Dispatcher) messageText(ev Event, community *communities.Community, author *auth.User) (title, body string) {
	title = "New post in " + community.Name
	body = fmt.Sprintf("\"%s\" by %s", truncateTitle(ev.Title, d.opts.TitleMaxLen), author.Name)
	return title, body
}

// syncIDs collects IDs from concurrent sends.
type syncIDs struct {
	mu  sync.Mutex
	all []int64
}

func (s *syncIDs) add(id int64) {
	s.mu.Lock()
	s.all = append(s.all, id)
	s.mu.Unlock()
}

func (s *syncIDs) ids() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all
}

// truncateTitle cuts s to max runes, appending "..." when it was longer.
func truncateTitle(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func (d *Dispatcher) countDispatch(status string) {
	if d.metrics != nil {
		d.metrics.DispatchesTotal.WithLabelValues(status).Inc()
	}
}

func (d *Dispatcher) countPush(status string) {
	if d.metrics != nil {
		d.metrics.PushDeliveriesTotal.WithLabelValues(status).Inc()
	}
}
