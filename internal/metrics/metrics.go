// Package metrics holds the Prometheus collectors of the service. They are registered with the
// default registry and served by promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birthday_reminder_digests_sent_total",
		Help: "Birthday digests handed to the mail sink.",
	})
	RemindersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birthday_reminder_digests_failed_total",
		Help: "Birthday digests whose delivery failed or timed out.",
	})
	RemindersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthday_reminder_digests_skipped_total",
		Help: "Birthday digests not sent, by reason.",
	}, []string{"reason"})

	ContactsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birthday_contacts_imported_total",
		Help: "Contacts created by CSV import.",
	})
	ImportRowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birthday_import_rows_skipped_total",
		Help: "CSV rows skipped because of validation errors or duplicates.",
	})

	ContactsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birthday_contacts_locked_total",
		Help: "Contacts locked by the entitlement engine.",
	})
	ContactsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birthday_contacts_unlocked_total",
		Help: "Contacts unlocked by the entitlement engine.",
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthday_billing_webhook_events_total",
		Help: "Billing webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
)
