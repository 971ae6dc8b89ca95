package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/contacts/internal/jobs"
	"github.com/odyssey-erp/contacts/internal/mail"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending account emails.
	TaskTypeSendEmail = "mail:send"
	// MailMaxRetry bounds delivery attempts of a single email.
	MailMaxRetry = 3
)

// NewSendEmailTask constructs an Asynq task carrying msg.
func NewSendEmailTask(msg mail.Message) (*asynq.Task, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(MailMaxRetry), asynq.Queue(QueueDefault)), nil
}

// MailRenderer turns a queued message into a deliverable one.
type MailRenderer interface {
	Render(msg mail.Message) (mail.Rendered, error)
}

// MailHandler renders and delivers TaskTypeSendEmail tasks.
type MailHandler struct {
	Renderer MailRenderer
	Sender   mail.Sender
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewMailHandler wires dependencies for the mail handler.
func NewMailHandler(renderer MailRenderer, sender mail.Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailHandler {
	return &MailHandler{Renderer: renderer, Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes one mail task. Malformed payloads are not retried.
func (h *MailHandler) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if h == nil || h.Renderer == nil || h.Sender == nil {
		return errors.New("mail handler: not configured")
	}
	tracker := h.metrics().Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	var msg mail.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		h.logger().Warn("drop malformed mail task", slog.Any("error", err))
		return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	rendered, err := h.Renderer.Render(msg)
	if err != nil {
		h.logger().Warn("drop unrenderable mail task", slog.String("kind", string(msg.Kind)), slog.Any("error", err))
		return fmt.Errorf("render mail: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.Sender.Send(ctx, rendered); err != nil {
		h.logger().Error("send mail", slog.String("kind", string(msg.Kind)), slog.String("to", msg.To), slog.Any("error", err))
		h.metrics().AddMails(string(msg.Kind), "failed", 1)
		return err
	}
	h.metrics().AddMails(string(msg.Kind), "sent", 1)
	h.logger().Info("mail sent", slog.String("kind", string(msg.Kind)), slog.String("to", msg.To))
	return nil
}

func (h *MailHandler) metrics() *jobmetrics.Metrics {
	if h.Metrics != nil {
		return h.Metrics
	}
	return defaultJobMetrics
}

func (h *MailHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)
