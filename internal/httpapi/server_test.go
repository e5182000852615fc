package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailvault/internal/archive"
	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/sync"
	"github.com/nhle/mailvault/internal/testutil"
)

type handlerFunc func(ctx context.Context, n model.Notification) (sync.Result, error)

func (f handlerFunc) Handle(ctx context.Context, n model.Notification) (sync.Result, error) {
	return f(ctx, n)
}

type stubPoller struct {
	triggered int
}

func (p *stubPoller) Trigger() { p.triggered++ }

func (p *stubPoller) Statuses() []sync.SyncStatus {
	return []sync.SyncStatus{{Slot: "me", SourceType: model.SourceTypeGmail, State: sync.SyncIdle}}
}

// listSource returns a fixed set of records above the cursor.
type listSource struct {
	records []model.ChangeRecord
}

func (s listSource) Type() model.SourceType { return model.SourceTypeGmail }

func (s listSource) ListSince(_ context.Context, cursor *model.Position) ([]model.ChangeRecord, error) {
	if cursor == nil {
		return nil, nil
	}
	var out []model.ChangeRecord
	for _, r := range s.records {
		if r.Position > *cursor {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s listSource) LatestPosition(context.Context) (model.Position, error) { return 0, nil }

func pushBody(t *testing.T, payload string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message": map[string]string{
			"data":      base64.StdEncoding.EncodeToString([]byte(payload)),
			"messageId": "msg-1",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	require.NoError(t, err)
	return body
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPush_MalformedNeverReachesEngine(t *testing.T) {
	called := false
	db := testutil.NewTestStore(t)
	srv := NewServer(ServerConfig{}, Deps{
		Engine: handlerFunc(func(context.Context, model.Notification) (sync.Result, error) {
			called = true
			return sync.Result{}, nil
		}),
		Cursors: db.Cursor("me"),
		Slot:    "me",
		Logger:  testutil.NewTestLogger(),
	})

	bodies := map[string][]byte{
		"not json":   []byte("{"),
		"no data":    []byte(`{"message":{}}`),
		"no history": pushBody(t, `{"emailAddress":"me@example.com"}`),
		"unstorable": pushBody(t, `{"emailAddress":"me@example.com","historyId":"9223372036854775813"}`),
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/pubsub", bytes.NewReader(body))
			req.Header.Set("X-Correlation-Id", "corr-1")
			srv.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			out := decode(t, rec)
			assert.Equal(t, "bad_request", out["code"])
			assert.Equal(t, "corr-1", out["correlationId"])
		})
	}
	assert.False(t, called)
}

func TestPush_EngineFailureIs500(t *testing.T) {
	db := testutil.NewTestStore(t)
	srv := NewServer(ServerConfig{}, Deps{
		Engine: handlerFunc(func(_ context.Context, n model.Notification) (sync.Result, error) {
			assert.Equal(t, model.Position(120), n.Position)
			assert.Equal(t, "msg-1", n.DeliveryID)
			return sync.Result{}, &sync.TransportError{Op: "list changes", Err: errors.New("timeout")}
		}),
		Cursors: db.Cursor("me"),
		Logger:  testutil.NewTestLogger(),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/pubsub",
		bytes.NewReader(pushBody(t, `{"emailAddress":"me@example.com","historyId":"120"}`)))
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "sync_failed", decode(t, rec)["code"])
}

func TestPush_BodyLimit(t *testing.T) {
	db := testutil.NewTestStore(t)
	srv := NewServer(ServerConfig{MaxBodyBytes: 16}, Deps{
		Engine:  handlerFunc(func(context.Context, model.Notification) (sync.Result, error) { return sync.Result{}, nil }),
		Cursors: db.Cursor("me"),
		Logger:  testutil.NewTestLogger(),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/pubsub", strings.NewReader(strings.Repeat("x", 64)))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPush_EndToEnd(t *testing.T) {
	db := testutil.NewTestStore(t)
	cursors := db.Cursor("me")
	_, err := cursors.Save(context.Background(), 100, nil)
	require.NoError(t, err)

	var archived []string
	engine, err := sync.New(sync.Deps{
		Cursors: cursors,
		Source: listSource{records: []model.ChangeRecord{
			{ID: "a", Position: 105},
			{ID: "b", Position: 110, Sequence: 1},
		}},
		Archiver: archive.ArchiverFunc(func(_ context.Context, rec model.ChangeRecord) (string, error) {
			archived = append(archived, rec.ID)
			return "doc-" + rec.ID, nil
		}),
		Runs:   db,
		Logger: testutil.NewTestLogger(),
	}, sync.Options{Slot: "me"})
	require.NoError(t, err)

	srv := NewServer(ServerConfig{}, Deps{
		Engine:  engine,
		Cursors: cursors,
		Runs:    db,
		Slot:    "me",
		Logger:  testutil.NewTestLogger(),
	})

	body := pushBody(t, `{"emailAddress":"me@example.com","historyId":120}`)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/webhooks/pubsub", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		out := decode(t, rec)
		if i == 0 {
			assert.Equal(t, "actionable", out["decision"])
			assert.Equal(t, "advanced", out["outcome"])
			assert.EqualValues(t, 2, out["archived"])
		} else {
			assert.Equal(t, "stale", out["decision"])
		}
	}
	assert.Equal(t, []string{"a", "b"}, archived)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.NotNil(t, status.Cursor)
	assert.Equal(t, model.Position(120), status.Cursor.Position)
	assert.Len(t, status.RecentRuns, 2)
	assert.Empty(t, status.Pollers)
}

func TestSync_TriggersPoller(t *testing.T) {
	db := testutil.NewTestStore(t)
	poller := &stubPoller{}
	srv := NewServer(ServerConfig{}, Deps{
		Engine:  handlerFunc(func(context.Context, model.Notification) (sync.Result, error) { return sync.Result{}, nil }),
		Poller:  poller,
		Cursors: db.Cursor("me"),
		Logger:  testutil.NewTestLogger(),
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, poller.triggered)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Nil(t, out["cursor"])
	assert.Len(t, out["pollers"], 1)
}

func TestSync_WithoutPoller(t *testing.T) {
	db := testutil.NewTestStore(t)
	srv := NewServer(ServerConfig{}, Deps{Cursors: db.Cursor("me"), Logger: testutil.NewTestLogger()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndIndex(t *testing.T) {
	db := testutil.NewTestStore(t)
	srv := NewServer(ServerConfig{}, Deps{Cursors: db.Cursor("me"), Slot: "me", Logger: testutil.NewTestLogger()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mailvault", decode(t, rec)["service"])

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/webhooks/pubsub", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
