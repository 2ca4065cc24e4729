package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Request is one structured request submitted by the CLI or the socket server
type Request struct {
	Action   string `json:"action"`
	Protocol string `json:"protocol,omitempty"`
	Username string `json:"username,omitempty"`
	Days     Number `json:"days,omitzero"`
	QuotaGB  Number `json:"quota_gb,omitzero"`
	AddDays  Number `json:"add_days,omitzero"`
	Op       string `json:"op,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Service  string `json:"service,omitempty"`
	Page     Number `json:"page,omitzero"`
	PageSize Number `json:"page_size,omitzero"`
	Limit    Number `json:"limit,omitzero"`
	Offset   Number `json:"offset,omitzero"`
}

// Number is a numeric request field that accepts JSON numbers and numeric strings
type Number struct {
	raw   string
	value float64
	set   bool
	valid bool
}

// NewNumber returns a set, valid Number
func NewNumber(v float64) Number {
	return Number{raw: strconv.FormatFloat(v, 'f', -1, 64), value: v, set: true, valid: true}
}

// ParseNumber builds a Number from command-line text; garbage stays invalid
func ParseNumber(s string) Number {
	var n Number
	_ = n.UnmarshalJSON(strconv.AppendQuote(nil, s))
	return n
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	*n = Number{raw: raw, set: true}
	if raw == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		n.value = v
		n.valid = true
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set || !n.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.value, 'f', -1, 64)), nil
}

// IsSet reports whether the field was present in the request
func (n Number) IsSet() bool {
	return n.set
}

// Float returns the value, or def when absent
func (n Number) Float(def float64) (float64, error) {
	if !n.set {
		return def, nil
	}
	if !n.valid {
		return 0, fmt.Errorf("%q is not a number", n.raw)
	}
	return n.value, nil
}

// Int returns the integral value, or def when absent
func (n Number) Int(def int) (int, error) {
	if !n.set {
		return def, nil
	}
	if !n.valid || n.value != math.Trunc(n.value) {
		return 0, fmt.Errorf("%q is not an integer", n.raw)
	}
	if n.value >= math.MaxInt64 || n.value < math.MinInt64 {
		return 0, fmt.Errorf("%q is out of range", n.raw)
	}
	return int(n.value), nil
}

// IntOr returns the integral value, falling back to def on absence or garbage
func (n Number) IntOr(def int) int {
	v, err := n.Int(def)
	if err != nil {
		return def
	}
	return v
}

// Response is the structured result of one request
type Response map[string]any

// Response status values
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// OK builds a successful response with optional fields
func OK(fields map[string]any) Response {
	resp := Response{"status": StatusOK}
	for k, v := range fields {
		resp[k] = v
	}
	return resp
}

// Fail builds an error response
func Fail(message string) Response {
	return Response{"status": StatusError, "error": message}
}

// IsOK reports whether the response carries status ok
func (r Response) IsOK() bool {
	s, _ := r["status"].(string)
	return s == StatusOK
}

// ErrorMessage returns the error field, if any
func (r Response) ErrorMessage() string {
	s, _ := r["error"].(string)
	return s
}
