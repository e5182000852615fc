package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/source"
)

// maxHistoryPages bounds pagination of a single ListSince call.
const maxHistoryPages = 100

// Source implements source.ChangeSource, source.ContentFetcher and
// source.Acknowledger over the Gmail history API.
type Source struct {
	client *Client
	userID string
	label  string
}

// NewSource creates a Gmail change source for userID ("me" for the
// authorized account). A non-empty label restricts history to that label.
func NewSource(client *Client, userID, label string) *Source {
	if userID == "" {
		userID = "me"
	}
	return &Source{client: client, userID: userID, label: label}
}

// Type returns the source type identifier for Gmail.
func (s *Source) Type() model.SourceType {
	return model.SourceTypeGmail
}

func (s *Source) userPath(suffix string) string {
	return "/gmail/v1/users/" + url.PathEscape(s.userID) + suffix
}

// ListSince pages through history.list starting at cursor and returns one
// record per newly added message. A 404 from the provider means the start
// position fell out of the retention window.
func (s *Source) ListSince(
	ctx context.Context,
	cursor *model.Position,
) ([]model.ChangeRecord, error) {
	if cursor == nil {
		return nil, nil
	}

	var (
		records   []model.ChangeRecord
		seen      = make(map[string]bool)
		pageToken string
	)
	for page := 0; page < maxHistoryPages; page++ {
		q := url.Values{}
		q.Set("startHistoryId", strconv.FormatUint(uint64(*cursor), 10))
		q.Set("historyTypes", "messageAdded")
		if s.label != "" {
			q.Set("labelId", s.label)
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var resp HistoryListResponse
		err := s.client.Get(ctx, s.userPath("/history?"+q.Encode()), &resp)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("listing history since %d: %w", *cursor, source.ErrHistoryExpired)
		}
		if err != nil {
			return nil, fmt.Errorf("listing history since %d: %w", *cursor, err)
		}

		records = appendRecords(records, seen, resp.History, *cursor)

		if resp.NextPageToken == "" {
			source.SortRecords(records)
			return records, nil
		}
		pageToken = resp.NextPageToken
	}

	return nil, fmt.Errorf("listing history since %d: more than %d pages", *cursor, maxHistoryPages)
}

// refs returns the message references of h. messagesAdded is preferred;
// records that only list touched messages fall back to messages.
func (h History) refs() []MessageRef {
	if len(h.MessagesAdded) > 0 {
		out := make([]MessageRef, 0, len(h.MessagesAdded))
		for _, added := range h.MessagesAdded {
			out = append(out, added.Message)
		}
		return out
	}
	return h.Messages
}

// appendRecords normalizes history into change records. Records at or
// below cursor are dropped and each message is reported once, at its
// earliest position.
func appendRecords(
	records []model.ChangeRecord,
	seen map[string]bool,
	history []History,
	cursor model.Position,
) []model.ChangeRecord {
	for _, h := range history {
		if model.Position(h.ID) <= cursor {
			continue
		}
		for _, ref := range h.refs() {
			if ref.ID == "" || seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			records = append(records, model.ChangeRecord{
				ID:       ref.ID,
				ThreadID: ref.ThreadID,
				Position: model.Position(h.ID),
				Sequence: len(records),
				Labels:   ref.LabelIDs,
			})
		}
	}
	return records
}

// LatestPosition returns the mailbox's current historyId.
func (s *Source) LatestPosition(ctx context.Context) (model.Position, error) {
	var profile Profile
	if err := s.client.Get(ctx, s.userPath("/profile"), &profile); err != nil {
		return 0, fmt.Errorf("fetching gmail profile: %w", err)
	}
	return model.Position(profile.HistoryID), nil
}

// FetchMessage retrieves a message and extracts its plain-text body,
// falling back to the snippet when no text/plain part exists.
func (s *Source) FetchMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg Message
	path := s.userPath("/messages/" + url.PathEscape(id) + "?format=full")
	if err := s.client.Get(ctx, path, &msg); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}

	out := &model.Message{
		ID:      msg.ID,
		Subject: headerValue(msg.Payload.Headers, "Subject"),
		From:    headerValue(msg.Payload.Headers, "From"),
		Text:    plainText(msg.Payload),
	}
	if msg.InternalDate > 0 {
		out.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if out.Text == "" {
		out.Text = msg.Snippet
	}
	return out, nil
}

// Acknowledge clears the UNREAD label so the message is not picked up by
// the mailbox owner's unread views again.
func (s *Source) Acknowledge(ctx context.Context, id string) error {
	path := s.userPath("/messages/" + url.PathEscape(id) + "/modify")
	req := ModifyRequest{RemoveLabelIDs: []string{"UNREAD"}}
	if err := s.client.Post(ctx, path, req, nil); err != nil {
		return fmt.Errorf("marking message %s read: %w", id, err)
	}
	return nil
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// plainText walks the MIME tree depth-first and decodes the first
// text/plain body.
func plainText(part MessagePart) string {
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body.Data != "" {
		if data, err := decodeBody(part.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, child := range part.Parts {
		if text := plainText(child); text != "" {
			return text
		}
	}
	return ""
}

func decodeBody(data string) ([]byte, error) {
	if out, err := base64.URLEncoding.DecodeString(data); err == nil {
		return out, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}
