package apierr

import "net/http"

// HandlerFunc is an http.Handler that returns its failure instead of
// writing it. Returned errors go through Write.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := f(w, r); err != nil {
		Write(w, r, err)
	}
}
