package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/chat"
	"chatrelay/internal/models"
	"chatrelay/internal/stream"
)

// ChatService is what the HTTP layer needs from chat.Service.
type ChatService interface {
	Post(uuid, username, body string) (models.Message, error)
	GetAll() ([]byte, error)
	GetSince(ts uint32) ([]byte, bool, error)
	OpenSubscription(conn stream.Conn) (string, error)
	CloseSubscription(id string)
	Touch(id string)
	ServerTime() uint32
}

type postResponse struct {
	Status    string `json:"status"`
	Timestamp uint32 `json:"timestamp"`
}

type pollResponse struct {
	Messages       json.RawMessage `json:"messages"`
	HasNewMessages bool            `json:"has_new_messages"`
	ServerTime     uint32          `json:"server_time"`
}

func postMessage(svc ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := models.DecodePost(r.Body)
		switch {
		case errors.Is(err, models.ErrMissingFields):
			WriteError(w, r, http.StatusBadRequest, "missing_fields", "uuid, username and message are required strings")
			return
		case err != nil:
			WriteError(w, r, http.StatusBadRequest, "invalid_json", "body must be a JSON object")
			return
		}

		m, err := svc.Post(req.UUID, req.Username, req.Message)
		if chat.IsValidation(err) {
			WriteError(w, r, http.StatusBadRequest, "invalid_message", err.Error())
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("post message")
			WriteError(w, r, http.StatusInternalServerError, "internal", "could not store message")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, postResponse{Status: "success", Timestamp: m.Timestamp})
	}
}

func getMessages(svc ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := svc.GetAll()
		if err != nil {
			log.Error().Err(err).Msg("get messages")
			WriteError(w, r, http.StatusInternalServerError, "internal", "could not read history")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}

func pollMessages(svc ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since uint32
		if raw := r.URL.Query().Get("since_timestamp"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				WriteError(w, r, http.StatusBadRequest, "invalid_timestamp", "since_timestamp must be an unsigned 32-bit integer")
				return
			}
			since = uint32(v)
		}

		b, hasNew, err := svc.GetSince(since)
		if err != nil {
			log.Error().Err(err).Msg("poll messages")
			WriteError(w, r, http.StatusInternalServerError, "internal", "could not read history")
			return
		}
		render.JSON(w, r, pollResponse{
			Messages:       b,
			HasNewMessages: hasNew,
			ServerTime:     svc.ServerTime(),
		})
	}
}

func newUUID(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"uuid": uuid.NewString()})
}

// openSubscription maps registry admission failures to HTTP responses. It
// returns false once a response has been written.
func openSubscription(w http.ResponseWriter, r *http.Request, svc ChatService, out *stream.Outbox) (string, bool) {
	id, err := svc.OpenSubscription(out)
	if errors.Is(err, stream.ErrCapacityExceeded) {
		WriteError(w, r, http.StatusTooManyRequests, "too_many_subscribers", "subscriber limit reached, retry later")
		return "", false
	}
	if err != nil {
		log.Error().Err(err).Msg("open subscription")
		WriteError(w, r, http.StatusInternalServerError, "internal", "could not open stream")
		return "", false
	}
	return id, true
}

// tracker lets a stream.Session report back through the service.
type tracker struct{ svc ChatService }

func (t tracker) Touch(id string)      { t.svc.Touch(id) }
func (t tracker) Unregister(id string) { t.svc.CloseSubscription(id) }
