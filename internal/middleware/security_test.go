package middleware_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/middleware"
)

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(middleware.SecurityHeaders())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS sent over plain HTTP: %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS over TLS")
	}
}

func TestMaxBodySize(t *testing.T) {
	r := gin.New()
	r.Use(middleware.MaxBodySize(8))
	r.POST("/api/v1/expand", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/expand", strings.NewReader(`{"query_graph": {}}`)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}

	if !strings.Contains(w.Body.String(), "body_too_large") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	var seen string

	r := gin.New()
	r.Use(middleware.RequestID(log), middleware.AccessLog(log))
	r.GET("/health", func(c *gin.Context) {
		seen = c.GetString(middleware.RequestIDKey)

		if got := middleware.Logger(c, log).Data["client_request_id"]; got != "client-1" {
			t.Errorf("client_request_id = %v", got)
		}

		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "client-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	got := w.Header().Get(middleware.RequestIDHeader)
	if got == "" || got == "client-1" || got != seen {
		t.Errorf("response id %q, handler id %q", got, seen)
	}
}
