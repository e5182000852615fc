package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/nhle/mailvault/internal/credential"
)

// DefaultDriveBaseURL is the root of the Drive upload API.
const DefaultDriveBaseURL = "https://www.googleapis.com"

// DriveStore uploads documents to a Drive v3 folder with a multipart
// upload. Drive does not deduplicate by name, so DriveStore is normally
// wrapped in Dedupe.
type DriveStore struct {
	baseURL    string
	folderID   string
	tokens     credential.Provider
	httpClient *http.Client
}

// NewDriveStore creates a DriveStore uploading into folderID (the drive
// root when empty).
func NewDriveStore(baseURL, folderID string, tokens credential.Provider) *DriveStore {
	if baseURL == "" {
		baseURL = DefaultDriveBaseURL
	}
	return &DriveStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		folderID: folderID,
		tokens:   tokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type driveFileMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

type driveFile struct {
	ID string `json:"id"`
}

// Put uploads doc and returns the new file's ID.
func (s *DriveStore) Put(ctx context.Context, doc Document) (string, error) {
	meta := driveFileMetadata{Name: doc.Name, MimeType: doc.MIMEType}
	if s.folderID != "" {
		meta.Parents = []string{s.folderID}
	}

	body, contentType, err := multipartRelated(meta, doc)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("obtaining access token: %w", err)
	}

	url := s.baseURL + "/upload/drive/v3/files?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", doc.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf(
			"unexpected status %d uploading %s: %s",
			resp.StatusCode, doc.Name, string(respBody),
		)
	}

	var file driveFile
	if err := json.Unmarshal(respBody, &file); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if file.ID == "" {
		return "", fmt.Errorf("upload of %s returned no file id", doc.Name)
	}
	return file.ID, nil
}

// multipartRelated encodes metadata and media as a multipart/related body.
func multipartRelated(meta driveFileMetadata, doc Document) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating metadata part: %w", err)
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", fmt.Errorf("encoding metadata: %w", err)
	}

	mediaType := doc.MIMEType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	mediaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mediaType},
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating media part: %w", err)
	}
	if _, err := mediaPart.Write(doc.Body); err != nil {
		return nil, "", fmt.Errorf("writing media part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}
