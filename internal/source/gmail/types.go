package gmail

// HistoryListResponse is the response from GET users/{id}/history.
type HistoryListResponse struct {
	History       []History `json:"history"`
	NextPageToken string    `json:"nextPageToken"`
	HistoryID     uint64    `json:"historyId,string"`
}

// History is one history record. Depending on the request, the provider
// reports affected messages under Messages, MessagesAdded, or both.
type History struct {
	ID            uint64         `json:"id,string"`
	Messages      []MessageRef   `json:"messages"`
	MessagesAdded []MessageAdded `json:"messagesAdded"`
}

// MessageAdded wraps a message reference in a messagesAdded entry.
type MessageAdded struct {
	Message MessageRef `json:"message"`
}

// MessageRef is the minimal message shape embedded in history records.
type MessageRef struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds"`
}

// Profile is the response from GET users/{id}/profile.
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int    `json:"messagesTotal"`
	HistoryID     uint64 `json:"historyId,string"`
}

// Message is the response from GET users/{id}/messages/{id}?format=full.
type Message struct {
	ID           string      `json:"id"`
	ThreadID     string      `json:"threadId"`
	LabelIDs     []string    `json:"labelIds"`
	Snippet      string      `json:"snippet"`
	HistoryID    uint64      `json:"historyId,string"`
	InternalDate int64       `json:"internalDate,string"`
	Payload      MessagePart `json:"payload"`
}

// MessagePart is a node of the MIME tree as returned by the API.
type MessagePart struct {
	PartID   string        `json:"partId"`
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Headers  []Header      `json:"headers"`
	Body     PartBody      `json:"body"`
	Parts    []MessagePart `json:"parts"`
}

// Header is a single MIME header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PartBody carries base64url-encoded part data.
type PartBody struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}

// ModifyRequest is the body of POST users/{id}/messages/{id}/modify.
type ModifyRequest struct {
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
}

// ErrorResponse is the provider's JSON error envelope.
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
