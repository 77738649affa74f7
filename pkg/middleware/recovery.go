package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"

	"eagerload/pkg/fastjson"
)

// Recoverer turns a handler panic into a JSON 500. Outside production the
// body also carries the panic value and the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			stack := string(debug.Stack())
			slog.Error("panic recovered",
				"error", rvr,
				"path", r.URL.Path,
				"method", r.Method,
			)

			body := map[string]interface{}{
				"status": http.StatusInternalServerError,
				"error":  "Internal Server Error",
			}
			env := os.Getenv("APP_ENV")
			if env != "" && env != "production" {
				body["detail"] = fmt.Sprintf("%v", rvr)
				body["stack"] = stack
			}

			out, _ := fastjson.Marshal(body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write(out)
		}()

		next.ServeHTTP(w, r)
	})
}
