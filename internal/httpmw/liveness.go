package httpmw

import (
	"net/http"

	"github.com/keithlinneman/apiedge/internal/apierr"
)

var errLivenessMethod = apierr.NewDomain(http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")

// Liveness answers GET and HEAD on path with an empty 200 without calling
// next. Other methods on path get a 405 envelope. It sits ahead of logging,
// origin checks and identity binding so load balancer checks stay cheap and
// quiet.
func Liveness(path string) Middleware {
	if path == "" {
		path = "/health"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Allow", "GET, HEAD")
				apierr.Write(w, r, errLivenessMethod)
				return
			}
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusOK)
		})
	}
}
