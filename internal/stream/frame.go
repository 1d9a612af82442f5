package stream

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event names carried on the push stream.
const (
	EventMessages = "messages"
	EventMessage  = "message"
	EventPing     = "ping"
	EventClose    = "close"
)

const DefaultRetry = 3 * time.Second

var pingPayload = []byte("{}")

// Frame renders one push event: "event: <name>\ndata: <json>\n\nretry: <ms>\n\n".
func Frame(event string, data []byte, retry time.Duration) []byte {
	ms := strconv.FormatInt(retry.Milliseconds(), 10)
	b := make([]byte, 0, len(event)+len(data)+len(ms)+32)
	b = append(b, "event: "...)
	b = append(b, event...)
	b = append(b, "\ndata: "...)
	b = append(b, data...)
	b = append(b, "\n\nretry: "...)
	b = append(b, ms...)
	b = append(b, "\n\n"...)
	return b
}

func closePayload(reason string) []byte {
	b, _ := json.Marshal(map[string]string{"reason": reason})
	return b
}
