package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/resendlabs/resend-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	requests []*resend.SendEmailRequest
	err      error
}

func (f *fakeSender) Send(params *resend.SendEmailRequest) (resend.SendEmailResponse, error) {
	f.requests = append(f.requests, params)
	return resend.SendEmailResponse{Id: "em_1"}, f.err
}

func TestDraftCreatedRendersEscapedHTML(t *testing.T) {
	sender := &fakeSender{}
	n, err := newResendNotifier(sender, "Fitmarket <hello@fitmarket.example>")
	require.NoError(t, err)

	err = n.DraftCreated(context.Background(), DraftCreated{
		To:         "anna@example.com",
		Name:       "<b>Anna</b>",
		PreviewURL: "https://fitmarket.example/trainers/temp/d1?token=abc",
		ExpiresAt:  time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sender.requests, 1)

	req := sender.requests[0]
	assert.Equal(t, []string{"anna@example.com"}, req.To)
	assert.Equal(t, "Fitmarket <hello@fitmarket.example>", req.From)
	assert.Contains(t, req.Html, "token=abc")
	assert.Contains(t, req.Html, "02.05.2025 10:00 UTC")
	assert.False(t, strings.Contains(req.Html, "<b>Anna</b>"), "names must be escaped")
}

func TestTrainerActivatedPropagatesSendError(t *testing.T) {
	boom := errors.New("rate limited")
	n, err := newResendNotifier(&fakeSender{err: boom}, "hello@fitmarket.example")
	require.NoError(t, err)

	err = n.TrainerActivated(context.Background(), TrainerActivated{To: "a@example.com", Name: "A", ProfileURL: "https://x"})
	assert.ErrorIs(t, err, boom)
}

func TestSendRequiresRecipient(t *testing.T) {
	sender := &fakeSender{}
	n, err := newResendNotifier(sender, "hello@fitmarket.example")
	require.NoError(t, err)

	assert.Error(t, n.TrainerActivated(context.Background(), TrainerActivated{Name: "A"}))
	assert.Empty(t, sender.requests)
}

func TestNewResendNotifierValidates(t *testing.T) {
	_, err := NewResendNotifier("", "hello@fitmarket.example")
	assert.Error(t, err)
	_, err = newResendNotifier(&fakeSender{}, " ")
	assert.Error(t, err)
}
