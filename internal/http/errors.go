package httpx

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrResponse is the JSON body of every non-2xx API response.
type ErrResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	_ = render.Render(w, r, &ErrResponse{Status: status, Code: code, Message: msg})
}
