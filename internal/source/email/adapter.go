package email

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/source"
)

// mailClient is the part of IMAPClient the adapter depends on.
type mailClient interface {
	State(ctx context.Context) (MailboxState, error)
	SearchUIDsAfter(ctx context.Context, after uint32) (MailboxState, []uint32, error)
	FetchMessage(ctx context.Context, uid uint32) (*ParsedMessage, error)
	SetFlags(ctx context.Context, uid uint32, flags []imap.Flag, add bool) error
}

// Adapter implements source.ChangeSource, source.ContentFetcher and
// source.Acknowledger over one IMAP folder.
//
// A position packs the folder's UIDVALIDITY into the high 32 bits and a
// UID into the low 32. When the folder is recreated the server assigns a
// greater UIDVALIDITY, so positions keep rising even though UIDs restart.
// UIDVALIDITY is truncated to 31 bits to stay within
// model.MaxStorablePosition.
type Adapter struct {
	client mailClient
}

// NewAdapter creates a new IMAP change source for folder.
func NewAdapter(
	host, port string,
	username, password string,
	useTLS bool,
	folder string,
) *Adapter {
	return &Adapter{
		client: NewIMAPClient(host, port, username, password, useTLS, folder),
	}
}

// Type returns the source type identifier for IMAP.
func (a *Adapter) Type() model.SourceType {
	return model.SourceTypeIMAP
}

// ListSince returns one record per message above cursor. A cursor from
// another UIDVALIDITY, or one at or past UIDNEXT, no longer names
// anything in the folder and is reported as expired history.
func (a *Adapter) ListSince(
	ctx context.Context,
	cursor *model.Position,
) ([]model.ChangeRecord, error) {
	if cursor == nil {
		return nil, nil
	}
	validity, after := splitPosition(*cursor)

	state, uids, err := a.client.SearchUIDsAfter(ctx, after)
	if err != nil {
		return nil, fmt.Errorf("listing messages after UID %d: %w", after, err)
	}
	current := state.UIDValidity & validityMask
	if validity != current {
		return nil, fmt.Errorf(
			"cursor UIDVALIDITY %d, folder has %d: %w",
			validity, current, source.ErrHistoryExpired,
		)
	}
	if state.UIDNext != 0 && after >= state.UIDNext {
		return nil, fmt.Errorf(
			"cursor UID %d beyond UIDNEXT %d: %w",
			after, state.UIDNext, source.ErrHistoryExpired,
		)
	}

	records := make([]model.ChangeRecord, 0, len(uids))
	for i, uid := range uids {
		records = append(records, model.ChangeRecord{
			ID:       recordID(current, uid),
			Position: joinPosition(current, uid),
			Sequence: i,
		})
	}
	source.SortRecords(records)
	return records, nil
}

// LatestPosition returns the position of the highest UID the folder can
// currently hold.
func (a *Adapter) LatestPosition(ctx context.Context) (model.Position, error) {
	state, err := a.client.State(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading folder state: %w", err)
	}
	var uid uint32
	if state.UIDNext > 0 {
		uid = state.UIDNext - 1
	}
	return joinPosition(state.UIDValidity, uid), nil
}

// Baseline moves latest back by lookback UIDs without leaving its
// UIDVALIDITY.
func (a *Adapter) Baseline(latest model.Position, lookback uint64) model.Position {
	validity, uid := splitPosition(latest)
	if uint64(uid) <= lookback {
		uid = 0
	} else {
		uid -= uint32(lookback)
	}
	return joinPosition(validity, uid)
}

// FetchMessage retrieves the message with the given UID. HTML-only
// messages are reduced to plain text.
func (a *Adapter) FetchMessage(ctx context.Context, id string) (*model.Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	parsed, err := a.client.FetchMessage(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}

	text := parsed.TextBody
	if text == "" && parsed.HTMLBody != "" {
		text = stripHTML(parsed.HTMLBody)
	}

	return &model.Message{
		ID:      id,
		Subject: parsed.Envelope.Subject,
		From:    parsed.Envelope.From,
		Date:    parsed.Envelope.Date,
		Text:    text,
	}, nil
}

// Acknowledge marks the message as seen.
func (a *Adapter) Acknowledge(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := a.client.SetFlags(ctx, uid, []imap.Flag{imap.FlagSeen}, true); err != nil {
		return fmt.Errorf("marking message %s seen: %w", id, err)
	}
	return nil
}

const validityMask = 1<<31 - 1

func joinPosition(validity, uid uint32) model.Position {
	return model.Position(uint64(validity&validityMask)<<32 | uint64(uid))
}

func splitPosition(p model.Position) (validity, uid uint32) {
	return uint32(uint64(p) >> 32), uint32(p)
}

// recordID names a message as "<uidvalidity>-<uid>" so messages from a
// recreated folder never share an ID with the ones they replaced.
func recordID(validity, uid uint32) string {
	return strconv.FormatUint(uint64(validity), 10) + "-" + strconv.FormatUint(uint64(uid), 10)
}

// parseUID extracts the UID from a record ID. A bare UID is accepted too.
func parseUID(id string) (uint32, error) {
	text := id
	if i := strings.LastIndexByte(id, '-'); i >= 0 {
		text = id[i+1:]
	}
	uid, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid email UID %q: %w", id, err,
		)
	}
	return uint32(uid), nil
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
