package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/labstack/echo/v4"
)

func TestAcceptsBrotli(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"gzip", false},
		{"gzip, br", true},
		{"br;q=1.0, gzip;q=0.5", true},
		{"BR", true},
		{"brotli", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAcceptEncoding, tt.header)
		if got := AcceptsBrotli(req); got != tt.want {
			t.Errorf("AcceptsBrotli(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func serve(t *testing.T, acceptEncoding string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(Brotli())
	e.GET("/", h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if acceptEncoding != "" {
		req.Header.Set(echo.HeaderAcceptEncoding, acceptEncoding)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBrotli_Compresses(t *testing.T) {
	payload := strings.Repeat("the same secret again and again ", 64)
	rec := serve(t, "gzip, br", func(c echo.Context) error {
		return c.String(http.StatusCreated, payload)
	})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentEncoding); got != "br" {
		t.Fatalf("Content-Encoding = %q, want br", got)
	}
	if rec.Body.Len() >= len(payload) {
		t.Errorf("compressed size %d not smaller than %d", rec.Body.Len(), len(payload))
	}

	body, err := io.ReadAll(brotli.NewReader(rec.Body))
	if err != nil {
		t.Fatalf("decompress error = %v", err)
	}
	if string(body) != payload {
		t.Errorf("decompressed body mismatch")
	}
}

func TestBrotli_Passthrough(t *testing.T) {
	rec := serve(t, "gzip", func(c echo.Context) error {
		return c.String(http.StatusOK, "plain")
	})

	if got := rec.Header().Get(echo.HeaderContentEncoding); got != "" {
		t.Errorf("Content-Encoding = %q, want none", got)
	}
	if rec.Body.String() != "plain" {
		t.Errorf("body = %q, want plain", rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderVary); got != echo.HeaderAcceptEncoding {
		t.Errorf("Vary = %q", got)
	}
}

func TestBrotli_NoBody(t *testing.T) {
	rec := serve(t, "br", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentEncoding); got != "" {
		t.Errorf("Content-Encoding = %q, want none", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body length = %d, want 0", rec.Body.Len())
	}
}

func TestBrotli_Skipper(t *testing.T) {
	e := echo.New()
	e.Use(BrotliWithConfig(BrotliConfig{
		Skipper: func(echo.Context) bool { return true },
	}))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "skip")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAcceptEncoding, "br")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderContentEncoding); got != "" {
		t.Errorf("Content-Encoding = %q, want none", got)
	}
}
