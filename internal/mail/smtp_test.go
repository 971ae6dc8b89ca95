package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSMTPMessageHeadersAndEncoding(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 1025, From: "noreply@x.com", FromName: "Contacts"})
	long := strings.Repeat("a", 2000)
	m, err := s.message(Rendered{To: "a@x.com", Subject: "Hello", HTML: "<p>" + long + "</p>"})
	require.NoError(t, err)
	require.NotEmpty(t, m.GetMessageID())

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	require.Contains(t, raw, "noreply@x.com")
	require.Contains(t, raw, "a@x.com")
	require.Contains(t, raw, "Subject: Hello")
	require.Contains(t, raw, "Date: ")
	require.Contains(t, raw, "Message-ID: <")
	require.Contains(t, raw, "Content-Type: text/html")
	require.Contains(t, raw, "Content-Transfer-Encoding: quoted-printable")
	for _, line := range strings.Split(raw, "\r\n") {
		require.LessOrEqual(t, len(line), 998)
	}
}

func TestSMTPMessageRejectsBadRecipient(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", From: "noreply@x.com"})
	_, err := s.message(Rendered{To: "not an address", Subject: "Hello", HTML: "<p>hi</p>"})
	require.Error(t, err)
}

func TestSMTPSendReportsDialFailure(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "noreply@x.com", SSL: true, Timeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Send(ctx, Rendered{To: "a@x.com", Subject: "Hello", HTML: "<p>hi</p>"})
	require.Error(t, err)
}
