package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var ErrBadRecord = errors.New("bad record")

// EncodeRecord is the persisted form of a message.
func EncodeRecord(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeRecord accepts the JSON form written by EncodeRecord and the older
// "uuid|username|message|timestamp" form. In the delimited form the message is
// everything between the second and the last separator, so it may contain '|'.
func DecodeRecord(b []byte) (Message, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Message{}, ErrBadRecord
	}
	if b[0] == '{' {
		var m Message
		if err := json.Unmarshal(b, &m); err != nil {
			return Message{}, ErrBadRecord
		}
		return m, nil
	}

	s := string(b)
	first := strings.IndexByte(s, '|')
	if first < 0 {
		return Message{}, ErrBadRecord
	}
	rest := s[first+1:]
	second := strings.IndexByte(rest, '|')
	if second < 0 {
		return Message{}, ErrBadRecord
	}
	body := rest[second+1:]
	last := strings.LastIndexByte(body, '|')
	if last < 0 {
		return Message{}, ErrBadRecord
	}
	ts, err := strconv.ParseUint(body[last+1:], 10, 32)
	if err != nil {
		return Message{}, ErrBadRecord
	}
	return Message{
		UUID:      s[:first],
		Username:  rest[:second],
		Message:   body[:last],
		Timestamp: uint32(ts),
	}, nil
}
