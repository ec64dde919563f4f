package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	if got, err := parsePositiveInt("", 50, 1, 500); err != nil || got != 50 {
		t.Fatalf("expected default, got %d (%v)", got, err)
	}
	if got, err := parsePositiveInt(" 25 ", 50, 1, 500); err != nil || got != 25 {
		t.Fatalf("expected 25, got %d (%v)", got, err)
	}
	if _, err := parsePositiveInt("abc", 50, 1, 500); err == nil {
		t.Fatalf("expected error for non-integer")
	}
	if _, err := parsePositiveInt("0", 50, 1, 500); err == nil {
		t.Fatalf("expected error below minimum")
	}
	if _, err := parsePositiveInt("501", 50, 1, 500); err == nil {
		t.Fatalf("expected error above maximum")
	}
}

func TestParseTimeFilter(t *testing.T) {
	t.Parallel()

	if got, err := parseTimeFilter(""); err != nil || got != nil {
		t.Fatalf("expected nil for empty input, got %v (%v)", got, err)
	}

	got, err := parseTimeFilter("2026-08-20T10:00:00+02:00")
	if err != nil || got == nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Location() != time.UTC || got.Hour() != 8 {
		t.Fatalf("expected UTC normalization, got %v", got)
	}

	got, err = parseTimeFilter("2026-08-20")
	if err != nil || got == nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 0 || got.Minute() != 0 {
		t.Fatalf("expected midnight UTC, got %v", got)
	}

	if _, err := parseTimeFilter("last tuesday"); err == nil {
		t.Fatalf("expected error for unparseable input")
	}
}

func TestReadBody(t *testing.T) {
	t.Parallel()

	e := echo.New()

	req := httptest.NewRequest("POST", "/api/v1/items", strings.NewReader(`{"a":1}`))
	c := e.NewContext(req, httptest.NewRecorder())
	body, err := readBody(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"a":1}` {
		t.Fatalf("unexpected body: %q", body)
	}

	req = httptest.NewRequest("POST", "/api/v1/items", strings.NewReader(""))
	c = e.NewContext(req, httptest.NewRecorder())
	if _, err := readBody(c); err == nil {
		t.Fatalf("expected error for empty body")
	}

	req = httptest.NewRequest("POST", "/api/v1/items", strings.NewReader(strings.Repeat("x", maxIngestBodyBytes+10)))
	c = e.NewContext(req, httptest.NewRecorder())
	if _, err := readBody(c); err == nil {
		t.Fatalf("expected error for oversized body")
	}
}
