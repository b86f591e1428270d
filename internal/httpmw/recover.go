package httpmw

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/xerrors"
)

// panicWriter tracks whether the handler started the response before it
// panicked.
type panicWriter struct {
	http.ResponseWriter
	status int
}

func (w *panicWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *panicWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *panicWriter) Status() int                 { return w.status }
func (w *panicWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *panicWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Recover turns a panic into an *apierr.PanicError carrying the panic
// stack and hands it to the error chain, which logs and reports it like any
// other unclassified failure. http.ErrAbortHandler is re-raised so the
// server can abort the connection. onPanic may be nil.
func Recover(onPanic func()) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pw := &panicWriter{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}
				// still on the panicking stack, so the captured pcs include
				// the frame that panicked
				apierr.Write(pw, r, xerrors.WithStack(&apierr.PanicError{Value: v}))
			}()
			next.ServeHTTP(pw, r)
		})
	}
}
