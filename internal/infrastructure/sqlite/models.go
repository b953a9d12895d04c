package sqlite

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zjrosen/creek-soundboard/internal/offline"
)

// EntryModel is one row of the entries table.
type EntryModel struct {
	BucketName    string
	BucketVersion int64
	Key           string
	Method        string
	URL           string
	Status        int
	Header        string // JSON object
	Body          []byte
	StoredAt      int64 // Unix nanoseconds
}

func toEntryModel(id offline.BucketID, key string, e *offline.Entry) (*EntryModel, error) {
	header := e.Header
	if header == nil {
		header = http.Header{}
	}
	raw, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}
	return &EntryModel{
		BucketName:    id.Name,
		BucketVersion: int64(id.Version),
		Key:           key,
		Method:        e.Method,
		URL:           e.URL,
		Status:        e.StatusCode,
		Header:        string(raw),
		Body:          body,
		StoredAt:      e.StoredAt.UnixNano(),
	}, nil
}

func (m *EntryModel) toEntry() (*offline.Entry, error) {
	var header http.Header
	if err := json.Unmarshal([]byte(m.Header), &header); err != nil {
		return nil, fmt.Errorf("failed to decode header of %s: %w", m.Key, err)
	}
	return &offline.Entry{
		Method:     m.Method,
		URL:        m.URL,
		StatusCode: m.Status,
		Header:     header,
		Body:       m.Body,
		StoredAt:   time.Unix(0, m.StoredAt).UTC(),
	}, nil
}
