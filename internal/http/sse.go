package httpx

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/stream"
)

// StreamOptions configures push sessions for both transports.
type StreamOptions struct {
	Session   stream.SessionOptions
	SendQueue int
}

func SSE(svc ChatService, opts StreamOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := stream.NewOutbox(opts.SendQueue)
		id, ok := openSubscription(w, r, svc, out)
		if !ok {
			return
		}

		sink, err := stream.NewSSESink(w)
		if err != nil {
			svc.CloseSubscription(id)
			WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", err.Error())
			return
		}

		sess := stream.NewSession(out, sink, tracker{svc}, opts.Session)
		sess.Registered(id)
		log.Debug().Str("subscriber", id).Str("transport", "sse").Msg("stream opened")
		sess.Run(r.Context())
	}
}
