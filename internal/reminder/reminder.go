// Package reminder runs the daily birthday batch: every user with at least one contact whose
// birthday is today gets one digest mail and an in-app notification per contact.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/mail"
	"gitlab.com/dirk.krummacker/birthday-service/internal/metrics"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/occurrence"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

// Store is what the job reads.
type Store interface {
	BirthdayCandidates(ctx context.Context, today time.Time) ([]model.Contact, error)
	UsersByIDs(ctx context.Context, ids []int64) ([]model.User, error)
}

// Notifier creates the in-app birthday notifications.
type Notifier interface {
	Birthday(ctx context.Context, c model.Contact, daysUntil int)
}

// Options tune a Job.
type Options struct {
	// SendTimeout bounds the delivery of a single digest.
	SendTimeout time.Duration
	// Concurrency is the number of digests delivered in parallel.
	Concurrency int
}

// Job is the reminder batch.
type Job struct {
	store    Store
	sender   mail.Sender
	notifier Notifier
	marker   Marker
	clock    clock.Clock
	opts     Options
	log      *logger.Logger
}

func NewJob(store Store, sender mail.Sender, notifier Notifier, marker Marker, clk clock.Clock, opts Options, log *logger.Logger) *Job {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Job{
		store:    store,
		sender:   sender,
		notifier: notifier,
		marker:   marker,
		clock:    clk,
		opts:     opts,
		log:      log.With("component", "reminder"),
	}
}

type batch struct {
	user     model.User
	contacts []model.Contact
}

// Run processes today's birthdays. Problems with single users are reported in the result and do
// not stop the run; an error is only returned when the candidates cannot be loaded.
func (j *Job) Run(ctx context.Context) (pkgmodel.ReminderRun, error) {
	today := j.clock.Today()
	key := today.Format("2006-01-02")
	result := pkgmodel.ReminderRun{Date: key, Failures: []string{}}

	batches, unknown, err := j.collect(ctx, today)
	if err != nil {
		return result, err
	}
	result.Users = len(batches)
	result.Skipped = unknown

	var mu sync.Mutex
	fail := func(userID int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Failures = append(result.Failures, fmt.Sprintf("user %d: %v", userID, err))
		metrics.RemindersFailed.Inc()
	}
	skip := func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		result.Skipped++
		metrics.RemindersSkipped.WithLabelValues(reason).Inc()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Concurrency)
	for _, b := range batches {
		b := b // per-iteration copy; go directive is below 1.22
		log := j.log.With("user_id", b.user.Id, "date", key)
		j.notify(ctx, b, key)

		if b.user.Email == nil || strings.TrimSpace(*b.user.Email) == "" {
			log.Warn("Skipping reminder, user has no email address")
			skip("no_email")
			continue
		}
		mailKey := markerKey("mailed", b.user.Id, key)
		claimed, err := j.marker.Claim(ctx, mailKey)
		if err != nil {
			log.Error("Could not claim reminder marker", "error", err)
			fail(b.user.Id, err)
			continue
		}
		if !claimed {
			log.Info("Reminder already sent today")
			skip("already_sent")
			continue
		}

		digest := j.digest(b, today)
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(gctx, j.opts.SendTimeout)
			defer cancel()
			if err := j.sender.Send(sendCtx, digest); err != nil {
				log.Error("Could not send reminder", "error", err)
				if err := j.marker.Release(context.WithoutCancel(ctx), mailKey); err != nil {
					log.Warn("Could not release reminder marker", "error", err)
				}
				fail(b.user.Id, err)
				return nil
			}
			mu.Lock()
			result.Sent++
			mu.Unlock()
			metrics.RemindersSent.Inc()
			log.Info("Reminder sent", "contacts", len(digest.Entries))
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Failures)
	j.log.Info("Reminder run finished",
		"date", key,
		"users", result.Users,
		"sent", result.Sent,
		"skipped", result.Skipped,
		"failed", len(result.Failures),
	)
	return result, nil
}

// collect groups today's contacts by owner. Contacts of unknown users are logged and dropped;
// the number of such users is returned as well.
func (j *Job) collect(ctx context.Context, today time.Time) ([]batch, int, error) {
	candidates, err := j.store.BirthdayCandidates(ctx, today)
	if err != nil {
		return nil, 0, fmt.Errorf("load birthday candidates: %w", err)
	}
	byUser := map[int64][]model.Contact{}
	var ids []int64
	for _, c := range candidates {
		if !c.Active || c.Locked || !occurrence.IsToday(c.BirthDate(), today) {
			continue
		}
		if _, ok := byUser[c.UserId]; !ok {
			ids = append(ids, c.UserId)
		}
		byUser[c.UserId] = append(byUser[c.UserId], c)
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	users, err := j.store.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("load users: %w", err)
	}
	known := make(map[int64]model.User, len(users))
	for _, u := range users {
		known[u.Id] = u
	}
	batches := make([]batch, 0, len(ids))
	unknown := 0
	for _, id := range ids {
		user, ok := known[id]
		if !ok {
			j.log.Warn("Skipping reminder, user not found", "user_id", id)
			metrics.RemindersSkipped.WithLabelValues("no_user").Inc()
			unknown++
			continue
		}
		batches = append(batches, batch{user: user, contacts: byUser[id]})
	}
	return batches, unknown, nil
}

// notify creates the in-app notifications once per user and day.
func (j *Job) notify(ctx context.Context, b batch, key string) {
	claimed, err := j.marker.Claim(ctx, markerKey("notified", b.user.Id, key))
	if err != nil {
		j.log.Warn("Could not claim notification marker", "user_id", b.user.Id, "error", err)
		return
	}
	if !claimed {
		return
	}
	for _, c := range b.contacts {
		j.notifier.Birthday(ctx, c, 0)
	}
}

func (j *Job) digest(b batch, today time.Time) mail.Digest {
	d := mail.Digest{UserID: b.user.Id, To: strings.TrimSpace(*b.user.Email), Name: b.user.Name, Today: today}
	for _, c := range b.contacts {
		birthDate := c.BirthDate()
		entry := mail.Entry{Name: c.Name, Date: birthDate.Display()}
		if occ := occurrence.Next(birthDate, today); occ.AgeKnown {
			age := occ.AgeTurning
			entry.Age = &age
		}
		d.Entries = append(d.Entries, entry)
	}
	return d
}
