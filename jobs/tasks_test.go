package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	jobmetrics "github.com/odyssey-erp/contacts/internal/jobs"
	"github.com/odyssey-erp/contacts/internal/mail"
)

type senderStub struct {
	sent []mail.Rendered
	err  error
}

func (s *senderStub) Send(_ context.Context, m mail.Rendered) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func newMailHandler(t *testing.T, sender mail.Sender) *MailHandler {
	t.Helper()
	renderer, err := mail.NewRenderer()
	require.NoError(t, err)
	return NewMailHandler(renderer, sender, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func confirmationTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewSendEmailTask(mail.Message{
		Kind:     mail.KindConfirmation,
		To:       "alice@example.com",
		Username: "alice",
		Token:    "tok",
		BaseURL:  "http://localhost:8000",
	})
	require.NoError(t, err)
	return task
}

func TestNewSendEmailTaskRejectsInvalidMessage(t *testing.T) {
	_, err := NewSendEmailTask(mail.Message{Kind: "sms", To: "a@x.com"})
	require.ErrorIs(t, err, mail.ErrUnknownKind)

	task := confirmationTask(t)
	require.Equal(t, TaskTypeSendEmail, task.Type())
	var decoded mail.Message
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, "alice@example.com", decoded.To)
}

func TestMailHandlerSends(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &senderStub{}
	h := newMailHandler(t, sender)

	require.NoError(t, h.Handle(context.Background(), confirmationTask(t)))
	require.Len(t, sender.sent, 1)
	require.Equal(t, "alice@example.com", sender.sent[0].To)
	require.Contains(t, sender.sent[0].HTML, "http://localhost:8000/api/auth/confirmed_email/tok")
}

func TestMailHandlerSkipsRetryOnMalformedPayload(t *testing.T) {
	h := newMailHandler(t, &senderStub{})

	err := h.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(mail.Message{Kind: "sms", To: "a@x.com"})
	err = h.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMailHandlerRetriesSenderFailure(t *testing.T) {
	boom := errors.New("smtp down")
	h := newMailHandler(t, &senderStub{err: boom})

	err := h.Handle(context.Background(), confirmationTask(t))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestMailHandlerNotConfigured(t *testing.T) {
	var h *MailHandler
	require.Error(t, h.Handle(context.Background(), confirmationTask(t)))
}
