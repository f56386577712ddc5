package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/target"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func withDefaultHTTPClient(t *testing.T, transport http.RoundTripper) {
	t.Helper()
	origClient := http.DefaultClient
	t.Cleanup(func() {
		http.DefaultClient = origClient
	})
	http.DefaultClient = &http.Client{
		Transport: transport,
	}
}

func TestSyncTabsLockedWrapsListTargetsError(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/json/list" {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader(`oops`)),
			}, nil
		}
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(``))}, nil
	}))

	c := &Client{
		cdp:           newRawCDP("http://example.com"),
		tabs:          map[target.ID]*tabSession{},
		chartToTarget: map[string]target.ID{},
	}

	err := c.syncTabsLocked(context.Background())
	if err == nil {
		t.Fatal("expected syncTabsLocked() to fail")
	}

	var codedErr *CodedError
	if !errors.As(err, &codedErr) {
		t.Fatalf("expected *CodedError, got %T", err)
	}
	if codedErr.Code != CodeCDPUnavailable {
		t.Fatalf("error code = %s; want %s", codedErr.Code, CodeCDPUnavailable)
	}
	if !strings.Contains(codedErr.Message, "failed to list targets") {
		t.Fatalf("error message = %q; want to contain %q", codedErr.Message, "failed to list targets")
	}
}

func TestEvalOnChartUnknownChart(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/json/list" {
			return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(``))}, nil
		}
		targets := []map[string]any{
			{"id": "target-1", "type": "page", "url": "https://example.com/chart/abc/", "title": "abc"},
			{"id": "target-2", "type": "service_worker", "url": "https://example.com/chart/sw/"},
			{"id": "target-3", "type": "page", "url": "https://example.com/news"},
		}
		payload, marshalErr := json.Marshal(targets)
		if marshalErr != nil {
			t.Fatalf("json.Marshal() = %v", marshalErr)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(payload)))}, nil
	}))

	c := NewClient("http://example.com", "", 0)
	c.cdp = newRawCDP("http://example.com")

	charts, err := c.ListCharts(context.Background())
	if err != nil {
		t.Fatalf("ListCharts() error = %v", err)
	}
	if len(charts) != 1 || charts[0].ChartID != "abc" || charts[0].TargetID != "target-1" {
		t.Fatalf("ListCharts() = %+v; want only chart abc", charts)
	}

	err = c.evalOnChart(context.Background(), "missing", jsGetVisibleLogicalRange(), nil)
	var codedErr *CodedError
	if !errors.As(err, &codedErr) || codedErr.Code != CodeChartNotFound {
		t.Fatalf("evalOnChart(missing) = %v; want %s", err, CodeChartNotFound)
	}
	if c.shouldRetry(err) {
		t.Fatal("shouldRetry(CHART_NOT_FOUND) = true")
	}

	if err := c.evalOnChart(context.Background(), "  ", "", nil); !c.asCode(err, CodeChartNotFound) {
		t.Fatalf("evalOnChart(blank) = %v; want %s", err, CodeChartNotFound)
	}
}

func TestShouldRetryTransientEvalFailures(t *testing.T) {
	c := &Client{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"cdp unavailable", newError(CodeCDPUnavailable, "x", nil), true},
		{"eval broken pipe", newError(CodeEvalFailure, "x", errors.New("write: broken pipe")), true},
		{"eval script error", newError(CodeEvalFailure, "x", errors.New("TypeError: ts is null")), false},
		{"eval no cause", newError(CodeEvalFailure, "x", nil), false},
		{"timeout", newError(CodeEvalTimeout, "x", context.DeadlineExceeded), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.shouldRetry(tt.err); got != tt.want {
				t.Fatalf("shouldRetry(%v) = %v; want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDecodeEnvelope(t *testing.T) {
	var r struct {
		From float64 `json:"from"`
		To   float64 `json:"to"`
	}
	if err := decodeEnvelope(`{"ok":true,"data":{"from":1.5,"to":9}}`, &r); err != nil {
		t.Fatalf("decodeEnvelope() error = %v", err)
	}
	if r.From != 1.5 || r.To != 9 {
		t.Fatalf("decoded = %+v; want {1.5 9}", r)
	}

	err := decodeEnvelope(`{"ok":false,"error_code":"API_UNAVAILABLE","error_message":"time scale unavailable"}`, nil)
	var codedErr *CodedError
	if !errors.As(err, &codedErr) || codedErr.Code != CodeAPIUnavailable {
		t.Fatalf("decodeEnvelope(failure) = %v; want %s", err, CodeAPIUnavailable)
	}
	if err := decodeEnvelope(`not json`, nil); !(&Client{}).asCode(err, CodeEvalFailure) {
		t.Fatalf("decodeEnvelope(garbage) = %v; want %s", err, CodeEvalFailure)
	}
	if err := decodeEnvelope(`{"ok":false}`, nil); !(&Client{}).asCode(err, CodeEvalFailure) {
		t.Fatalf("decodeEnvelope(no code) = %v; want %s", err, CodeEvalFailure)
	}
}

func TestChartIDFromURL(t *testing.T) {
	tests := map[string]string{
		"https://charts.example.com/chart/btc-1h/":  "btc-1h",
		"https://charts.example.com/chart/eth?x=1":  "eth",
		"https://charts.example.com/markets/":       "",
		"http://localhost:5173/chart/abc#crosshair": "abc",
	}
	for url, want := range tests {
		if got := chartIDFromURL(url); got != want {
			t.Fatalf("chartIDFromURL(%q) = %q; want %q", url, got, want)
		}
	}
}
