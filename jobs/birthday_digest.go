package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/contacts/internal/contacts"
	jobmetrics "github.com/odyssey-erp/contacts/internal/jobs"
	"github.com/odyssey-erp/contacts/internal/mail"
)

const (
	// TaskTypeBirthdayDigest is the daily task emailing owners their upcoming birthdays.
	TaskTypeBirthdayDigest = "contacts:birthday_digest"
	// BirthdayDigestCron runs the digest every morning (UTC).
	BirthdayDigestCron = "0 7 * * *"
)

// BirthdayDigestPayload controls the digest window.
type BirthdayDigestPayload struct {
	Days int `json:"days"`
}

// NewBirthdayDigestTask prepares the digest task for the scheduler.
func NewBirthdayDigestTask(days int) (*asynq.Task, error) {
	data, err := json.Marshal(BirthdayDigestPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBirthdayDigest, data, asynq.MaxRetry(1), asynq.Queue(QueueDefault)), nil
}

// ReminderSource loads upcoming birthdays grouped by owner.
type ReminderSource interface {
	Reminders(ctx context.Context, ranges []contacts.DayRange) ([]contacts.Reminder, error)
}

// MailQueue enqueues a message for the mail handler.
type MailQueue interface {
	EnqueueEmail(ctx context.Context, msg mail.Message) error
}

// BirthdayDigestHandler fans the digest out as one mail task per owner.
type BirthdayDigestHandler struct {
	Source  ReminderSource
	Queue   MailQueue
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Now     func() time.Time
}

// NewBirthdayDigestHandler wires dependencies for the digest handler.
func NewBirthdayDigestHandler(source ReminderSource, queue MailQueue, logger *slog.Logger, metrics *jobmetrics.Metrics) *BirthdayDigestHandler {
	return &BirthdayDigestHandler{Source: source, Queue: queue, Logger: logger, Metrics: metrics, Now: time.Now}
}

// Handle builds and enqueues the digests. It fails only when nothing could be queued,
// so a retry never mails the same owner twice.
func (h *BirthdayDigestHandler) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if h == nil || h.Source == nil || h.Queue == nil {
		return errors.New("birthday digest handler: not configured")
	}
	metrics := h.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskTypeBirthdayDigest)
	defer func() {
		err = tracker.End(err)
	}()

	payload := BirthdayDigestPayload{Days: contacts.DefaultBirthdayDays}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode digest payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Days <= 0 || payload.Days > contacts.MaxBirthdayDays {
		payload.Days = contacts.DefaultBirthdayDays
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	reminders, err := h.Source.Reminders(ctx, contacts.BirthdayRanges(now().UTC(), payload.Days))
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var queued, failed int
	for _, reminder := range reminders {
		msg := digestMessage(reminder)
		if err := h.Queue.EnqueueEmail(ctx, msg); err != nil {
			failed++
			logger.Error("enqueue birthday digest", slog.Int64("owner_id", reminder.OwnerID), slog.Any("error", err))
			continue
		}
		queued++
	}
	metrics.AddMails(string(mail.KindBirthdayDigest), "queued", queued)
	metrics.AddMails(string(mail.KindBirthdayDigest), "failed", failed)
	logger.Info("birthday digest", slog.Int("days", payload.Days), slog.Int("queued", queued), slog.Int("failed", failed))

	if queued == 0 && failed > 0 {
		return fmt.Errorf("birthday digest: %d owners failed", failed)
	}
	return nil
}

func digestMessage(r contacts.Reminder) mail.Message {
	msg := mail.Message{
		Kind:      mail.KindBirthdayDigest,
		To:        r.OwnerEmail,
		Username:  r.OwnerName,
		Birthdays: make([]mail.Birthday, 0, len(r.Contacts)),
	}
	for _, c := range r.Contacts {
		line := mail.Birthday{
			Name:  strings.TrimSpace(c.FirstName + " " + c.LastName),
			Email: c.Email,
		}
		if c.Birthdate != nil {
			line.Date = c.Birthdate.Format("01-02")
		}
		msg.Birthdays = append(msg.Birthdays, line)
	}
	return msg
}
