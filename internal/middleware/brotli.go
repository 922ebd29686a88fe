package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/labstack/echo/v4"
)

const encodingBrotli = "br"

type BrotliConfig struct {
	// Level is passed to brotli.NewWriterLevel. Zero means brotli.DefaultCompression.
	Level int
	// Skipper defines a function to skip the middleware.
	Skipper func(c echo.Context) bool
}

// AcceptsBrotli reports whether the client listed br in Accept-Encoding.
func AcceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get(echo.HeaderAcceptEncoding), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(name, encodingBrotli) {
			return true
		}
	}
	return false
}

func Brotli() echo.MiddlewareFunc {
	return BrotliWithConfig(BrotliConfig{})
}

// BrotliWithConfig compresses response bodies for clients that accept br.
// Responses without a body are sent untouched.
func BrotliWithConfig(config BrotliConfig) echo.MiddlewareFunc {
	level := config.Level
	if level == 0 {
		level = brotli.DefaultCompression
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper != nil && config.Skipper(c) {
				return next(c)
			}

			res := c.Response()
			res.Header().Add(echo.HeaderVary, echo.HeaderAcceptEncoding)
			if !AcceptsBrotli(c.Request()) {
				return next(c)
			}

			bw := &brotliResponseWriter{ResponseWriter: res.Writer, level: level}
			res.Writer = bw
			defer func() {
				res.Writer = bw.ResponseWriter
				bw.finish()
			}()

			return next(c)
		}
	}
}

type brotliResponseWriter struct {
	http.ResponseWriter
	level       int
	writer      *brotli.Writer
	code        int
	wroteHeader bool
}

func (w *brotliResponseWriter) WriteHeader(code int) {
	w.Header().Del(echo.HeaderContentLength)
	w.wroteHeader = true
	w.code = code
}

func (w *brotliResponseWriter) start() {
	if w.writer != nil {
		return
	}
	w.Header().Set(echo.HeaderContentEncoding, encodingBrotli)
	w.Header().Del(echo.HeaderContentLength)
	if w.code == 0 {
		w.code = http.StatusOK
	}
	w.ResponseWriter.WriteHeader(w.code)
	w.writer = brotli.NewWriterLevel(w.ResponseWriter, w.level)
}

func (w *brotliResponseWriter) Write(b []byte) (int, error) {
	if w.Header().Get(echo.HeaderContentType) == "" {
		w.Header().Set(echo.HeaderContentType, http.DetectContentType(b))
	}
	w.start()
	return w.writer.Write(b)
}

func (w *brotliResponseWriter) Flush() {
	if w.writer != nil {
		w.writer.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *brotliResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("response does not implement http.Hijacker")
}

func (w *brotliResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *brotliResponseWriter) finish() {
	if w.writer != nil {
		w.writer.Close()
		return
	}
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(w.code)
	}
}
