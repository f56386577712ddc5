package cdpcontrol

import "fmt"

const (
	CodeValidation     = "VALIDATION"
	CodeChartNotFound  = "CHART_NOT_FOUND"
	CodeAPIUnavailable = "API_UNAVAILABLE"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"

	CodeViewportNotFound  = "VIEWPORT_NOT_FOUND"
	CodeViewportExists    = "VIEWPORT_EXISTS"
	CodeWidgetUnavailable = "WIDGET_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// ChartInfo describes a chart tab mapped from a browser target.
type ChartInfo struct {
	ChartID  string `json:"chart_id"`
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// LogicalPoint is the result of a pixel to logical conversion.
type LogicalPoint struct {
	OK      bool    `json:"ok"`
	Logical float64 `json:"logical"`
}

// BarData is one OHLC bar as reported by the page.
type BarData struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// nativeEvent is the payload the page sends through the sync binding.
type nativeEvent struct {
	Chart  string   `json:"chart"`
	Kind   string   `json:"kind"`
	From   float64  `json:"from"`
	To     float64  `json:"to"`
	Time   *int64   `json:"time"`
	Value  *float64 `json:"value"`
	Series string   `json:"series,omitempty"`
}
