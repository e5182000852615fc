package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedNotification reports a push body that cannot be decoded into
// a Notification. It is a client error and is never retried internally.
var ErrMalformedNotification = errors.New("malformed notification")

// Notification is an inbound hint that the mailbox has changed. It carries
// the provider's high-water mark at emission time and is never stored.
type Notification struct {
	// Mailbox is the address the notification refers to.
	Mailbox string `json:"mailbox"`

	// Position is the provider position announced by the notification.
	Position Position `json:"position"`

	// DeliveryID is the transport's message ID, used for log correlation.
	DeliveryID string `json:"delivery_id,omitempty"`

	// ReceivedAt is when the notification reached this service.
	ReceivedAt time.Time `json:"received_at"`
}

// PushEnvelope is the JSON body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// mailboxChange is the payload carried base64-encoded in PushEnvelope.
type mailboxChange struct {
	EmailAddress string          `json:"emailAddress"`
	HistoryID    json.RawMessage `json:"historyId"`
}

// ParsePushEnvelope decodes a push delivery body into a Notification.
// Every failure wraps ErrMalformedNotification.
func ParsePushEnvelope(body []byte, now time.Time) (Notification, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Notification{}, fmt.Errorf("%w: invalid json body", ErrMalformedNotification)
	}
	if env.Message.Data == "" {
		return Notification{}, fmt.Errorf("%w: missing message.data", ErrMalformedNotification)
	}

	raw, err := decodeBase64(env.Message.Data)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: message.data is not base64", ErrMalformedNotification)
	}

	var change mailboxChange
	if err := json.Unmarshal(raw, &change); err != nil {
		return Notification{}, fmt.Errorf("%w: message.data is not json", ErrMalformedNotification)
	}
	pos, err := parseHistoryID(change.HistoryID)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrMalformedNotification, err)
	}

	return Notification{
		Mailbox:    change.EmailAddress,
		Position:   pos,
		DeliveryID: env.Message.MessageID,
		ReceivedAt: now,
	}, nil
}

// decodeBase64 accepts both standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// parseHistoryID accepts a JSON number or a decimal string.
func parseHistoryID(raw json.RawMessage) (Position, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing historyId")
	}

	text := string(raw)
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("invalid historyId: %v", err)
		}
	}

	n, err := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid historyId %q", text)
	}
	if err := Position(n).CheckStorable(); err != nil {
		return 0, fmt.Errorf("historyId: %w", err)
	}
	return Position(n), nil
}
