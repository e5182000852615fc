package archive

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailvault/internal/credential"
	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/testutil"
)

type fakeFetcher map[string]*model.Message

func (f fakeFetcher) FetchMessage(_ context.Context, id string) (*model.Message, error) {
	msg, ok := f[id]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return msg, nil
}

type memoryStore struct {
	docs []Document
	err  error
}

func (m *memoryStore) Put(_ context.Context, doc Document) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.docs = append(m.docs, doc)
	return "doc-" + doc.Key, nil
}

type recordingAck struct {
	ids []string
	err error
}

func (r *recordingAck) Acknowledge(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return r.err
}

func TestPipeline_FetchesStoresAndAcknowledges(t *testing.T) {
	fetcher := fakeFetcher{"m-1": {ID: "m-1", Subject: "Shopping list", Text: "eggs"}}
	docs := &memoryStore{}
	ack := &recordingAck{err: errors.New("ack down")}
	p := NewPipeline(fetcher, docs, ack, testutil.NewTestLogger())

	id, err := p.Archive(context.Background(), model.ChangeRecord{ID: "m-1"})
	require.NoError(t, err, "ack failures must not fail the archive")
	assert.Equal(t, "doc-m-1", id)
	require.Len(t, docs.docs, 1)
	assert.Equal(t, "Shopping list.md", docs.docs[0].Name)
	assert.Equal(t, "text/markdown", docs.docs[0].MIMEType)
	assert.Equal(t, "eggs", string(docs.docs[0].Body))
	assert.Equal(t, []string{"m-1"}, ack.ids)
}

func TestPipeline_StoreFailureSkipsAck(t *testing.T) {
	fetcher := fakeFetcher{"m-1": {ID: "m-1"}}
	ack := &recordingAck{}
	p := NewPipeline(fetcher, &memoryStore{err: errors.New("disk full")}, ack, testutil.NewTestLogger())

	_, err := p.Archive(context.Background(), model.ChangeRecord{ID: "m-1"})
	require.Error(t, err)
	assert.Empty(t, ack.ids)
}

func TestPipeline_FetchFailure(t *testing.T) {
	p := NewPipeline(fakeFetcher{}, &memoryStore{}, nil, testutil.NewTestLogger())
	_, err := p.Archive(context.Background(), model.ChangeRecord{ID: "gone"})
	assert.Error(t, err)
}

func TestNewDocument_FallsBackToRecordID(t *testing.T) {
	doc := NewDocument(model.ChangeRecord{ID: "m-9"}, &model.Message{Subject: "  "})
	assert.Equal(t, "m-9.md", doc.Name)
	assert.Equal(t, "m-9", doc.Key)
}

func TestFolderStore_RewritesSameFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFolderStore(dir)
	require.NoError(t, err)

	doc := Document{Key: "m-1", Name: "Plans / ideas?.md", Body: []byte("v1")}
	first, err := s.Put(context.Background(), doc)
	require.NoError(t, err)

	doc.Body = []byte("v2")
	second, err := s.Put(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, first))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Equal(t, "Plans _ ideas (m-1).md", first)
}

func TestDriveStore_UploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/drive/v3/files", r.URL.Path)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])
		meta, err := mr.NextPart()
		require.NoError(t, err)
		metaBody, _ := io.ReadAll(meta)
		assert.JSONEq(t, `{"name":"Note.md","mimeType":"text/markdown","parents":["folder-1"]}`, string(metaBody))

		media, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "text/markdown", media.Header.Get("Content-Type"))
		mediaBody, _ := io.ReadAll(media)
		assert.Equal(t, "hello", string(mediaBody))

		_, _ = w.Write([]byte(`{"id":"file-123"}`))
	}))
	defer srv.Close()

	s := NewDriveStore(srv.URL, "folder-1", credential.Static("tok"))
	id, err := s.Put(context.Background(), Document{
		Key: "m-1", Name: "Note.md", MIMEType: "text/markdown", Body: []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "file-123", id)
}

func TestDriveStore_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewDriveStore(srv.URL, "", credential.Static("tok"))
	_, err := s.Put(context.Background(), Document{Key: "k", Name: "n.md"})
	assert.Error(t, err)
}

func TestDedupe_SkipsRecordedArtifacts(t *testing.T) {
	ledger := testutil.NewTestStore(t)
	calls := 0
	inner := ArchiverFunc(func(_ context.Context, rec model.ChangeRecord) (string, error) {
		calls++
		return "artifact-" + rec.ID, nil
	})
	d := NewDedupe(inner, ledger, "me", testutil.NewTestLogger())

	for i := 0; i < 3; i++ {
		id, err := d.Archive(context.Background(), model.ChangeRecord{ID: "m-1"})
		require.NoError(t, err)
		assert.Equal(t, "artifact-m-1", id)
	}
	assert.Equal(t, 1, calls)
}

func TestDedupe_FailureIsNotRecorded(t *testing.T) {
	ledger := testutil.NewTestStore(t)
	fail := true
	inner := ArchiverFunc(func(_ context.Context, rec model.ChangeRecord) (string, error) {
		if fail {
			return "", errors.New("upload failed")
		}
		return "ok", nil
	})
	d := NewDedupe(inner, ledger, "me", testutil.NewTestLogger())

	_, err := d.Archive(context.Background(), model.ChangeRecord{ID: "m-1"})
	require.Error(t, err)

	fail = false
	id, err := d.Archive(context.Background(), model.ChangeRecord{ID: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", id)
}
