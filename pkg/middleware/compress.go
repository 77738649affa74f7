package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var brWriterPool = sync.Pool{
	New: func() interface{} {
		return brotli.NewWriter(nil)
	},
}

type brotliResponseWriter struct {
	http.ResponseWriter
	w           *brotli.Writer
	wroteHeader bool
	compressed  bool
}

// WriteHeader decides whether the body is compressed. Only successful JSON
// responses are; 204/304 must never carry an encoding.
func (w *brotliResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	ct := w.Header().Get("Content-Type")
	if code == http.StatusOK && strings.HasPrefix(ct, "application/json") {
		w.compressed = true
		w.Header().Del("Content-Length")
		w.Header().Set("Content-Encoding", "br")
		w.Header().Add("Vary", "Accept-Encoding")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *brotliResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if !w.compressed {
		return w.ResponseWriter.Write(b)
	}
	return w.w.Write(b)
}

func (w *brotliResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("brotliResponseWriter: underlying ResponseWriter does not support Hijacker")
}

func (w *brotliResponseWriter) Flush() {
	if w.compressed {
		w.w.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Brotli compresses JSON responses for clients that accept br. Loaded
// relation trees are repetitive and shrink well.
func Brotli(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "br") || w.Header().Get("Content-Encoding") != "" {
			next.ServeHTTP(w, r)
			return
		}

		bw := brWriterPool.Get().(*brotli.Writer)
		defer brWriterPool.Put(bw)
		bw.Reset(w)

		brw := &brotliResponseWriter{ResponseWriter: w, w: bw}
		defer func() {
			if brw.compressed {
				bw.Close()
			}
		}()

		next.ServeHTTP(brw, r)
	})
}
