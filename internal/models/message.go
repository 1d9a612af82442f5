package models

import (
	"encoding/json"
	"errors"
	"io"
)

// Field bounds in bytes.
const (
	MaxUUIDLen     = 36
	MaxUsernameLen = 31
	MaxMessageLen  = 150
)

// Message is one retained chat message. Timestamp is assigned by the server
// in seconds since the epoch.
type Message struct {
	UUID      string `json:"uuid"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp uint32 `json:"timestamp"`
}

// PostRequest is the body accepted from producers (HTTP or broker ingest).
type PostRequest struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

var (
	ErrBadJSON       = errors.New("bad json")
	ErrMissingFields = errors.New("missing required fields")
)

type rawPost struct {
	UUID     *string `json:"uuid"`
	Username *string `json:"username"`
	Message  *string `json:"message"`
}

// DecodePost reads a single PostRequest. Every field must be present and be a
// JSON string; length bounds are checked later by the message log.
func DecodePost(r io.Reader) (PostRequest, error) {
	var raw rawPost
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return PostRequest{}, ErrBadJSON
	}
	if raw.UUID == nil || raw.Username == nil || raw.Message == nil {
		return PostRequest{}, ErrMissingFields
	}
	return PostRequest{UUID: *raw.UUID, Username: *raw.Username, Message: *raw.Message}, nil
}

// MarshalList encodes msgs as a JSON array, never as null.
func MarshalList(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(msgs)
}
