package apierr

import (
	"encoding/json"
	"net/http"
)

// Emit writes env as the JSON response body with the given status. The body
// carries exactly the code and message fields.
func Emit(w http.ResponseWriter, status int, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Del("Content-Length")
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}
