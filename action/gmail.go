package action

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// Email is the message sent by GmailHandler.
type Email struct {
	Recipient string `slot:"recipient"`
	Subject   string `slot:"subject"`
	Body      string `slot:"body"`
}

// GmailHandler sends the approved email draft through the Gmail API on
// behalf of the authenticated user.
type GmailHandler struct {
	svc  *gmail.Service
	from string
}

// NewGmailHandler returns a handler sending through svc. from is used as the
// From header; empty lets Gmail fill in the account address.
func NewGmailHandler(svc *gmail.Service, from string) *GmailHandler {
	return &GmailHandler{svc: svc, from: from}
}

// Execute implements Handler.
func (h *GmailHandler) Execute(ctx context.Context, name string, slots map[string]any) (Result, error) {
	var msg Email
	if err := decodeSlots(slots, &msg); err != nil {
		return Result{}, err
	}
	if err := requireSlots(
		[2]string{"recipient", msg.Recipient},
		[2]string{"subject", msg.Subject},
		[2]string{"body", msg.Body},
	); err != nil {
		return Result{}, err
	}

	sent, err := h.svc.Users.Messages.Send("me", &gmail.Message{Raw: encodeRFC2822(h.from, msg)}).
		Context(ctx).
		Do()
	if err != nil {
		return Result{}, fmt.Errorf("gmail send: %w", err)
	}

	return Result{
		Action:  name,
		Success: true,
		Detail:  fmt.Sprintf("Your email %q has been sent to %s.", msg.Subject, msg.Recipient),
		Payload: map[string]any{
			"message_id": sent.Id,
			"thread_id":  sent.ThreadId,
			"recipient":  msg.Recipient,
			"subject":    msg.Subject,
		},
	}, nil
}

// encodeRFC2822 renders msg as a plain-text message in the base64url form
// the Gmail API expects.
func encodeRFC2822(from string, msg Email) string {
	var sb strings.Builder
	if from != "" {
		sb.WriteString("From: " + from + "\r\n")
	}
	sb.WriteString("To: " + msg.Recipient + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)
	return base64.URLEncoding.EncodeToString([]byte(sb.String()))
}
