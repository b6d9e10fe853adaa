package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func detectedLocale(t *testing.T, setup func(*http.Request)) string {
	t.Helper()
	var got string
	handler := I18N("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if setup != nil {
		setup(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestI18NHeaderPriority(t *testing.T) {
	if got := detectedLocale(t, nil); got != "en" {
		t.Fatalf("default locale = %q, want en", got)
	}
	if got := detectedLocale(t, func(r *http.Request) {
		r.Header.Set("X-Locale", "id-ID")
	}); got != "id" {
		t.Fatalf("X-Locale = %q, want id", got)
	}
	if got := detectedLocale(t, func(r *http.Request) {
		r.Header.Set("Accept-Language", "id,en;q=0.8")
	}); got != "id" {
		t.Fatalf("Accept-Language = %q, want id", got)
	}
	if got := detectedLocale(t, func(r *http.Request) {
		r.Header.Set("X-Locale", "fr")
		r.Header.Set("Accept-Language", "id")
	}); got != "en" {
		t.Fatalf("X-Locale should win and normalize, got %q", got)
	}
}

func TestOwnerHeader(t *testing.T) {
	var got string
	handler := Owner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = OwnerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != DefaultOwner {
		t.Fatalf("owner = %q, want %q", got, DefaultOwner)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "user-7" {
		t.Fatalf("owner = %q, want user-7", got)
	}
}
