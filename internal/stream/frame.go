package stream

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Frame is one decoded object from a streaming response. Pull streams fill
// Status/Completed/Total, chat streams fill Message, generate streams fill
// Response; any of them may carry Error instead.
type Frame struct {
	Status    string        `json:"status,omitempty"`
	Digest    string        `json:"digest,omitempty"`
	Completed *int64        `json:"completed,omitempty"`
	Total     *int64        `json:"total,omitempty"`
	Message   *MessageDelta `json:"message,omitempty"`
	Response  string        `json:"response,omitempty"`
	Error     ErrorText     `json:"error,omitempty"`
	Done      bool          `json:"done,omitempty"`
}

// MessageDelta is the incremental part of an assistant message.
type MessageDelta struct {
	Role     string `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// HasError reports whether the frame carries an application error.
func (f Frame) HasError() bool { return f.Error != "" }

// HasProgress reports whether both byte counters are present and total is
// usable as a divisor.
func (f Frame) HasProgress() bool {
	return f.Completed != nil && f.Total != nil && *f.Total > 0
}

// UnmarshalJSON decodes the byte counters as any JSON number, so servers
// that emit floats ("completed":50.0) still produce progress.
func (f *Frame) UnmarshalJSON(data []byte) error {
	type plain Frame
	aux := struct {
		*plain
		Completed *json.Number `json:"completed,omitempty"`
		Total     *json.Number `json:"total,omitempty"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if f.Completed, err = counter(aux.Completed); err != nil {
		return err
	}
	f.Total, err = counter(aux.Total)
	return err
}

func counter(n *json.Number) (*int64, error) {
	if n == nil || *n == "" {
		return nil, nil
	}
	if v, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return &v, nil
	}
	fl, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return nil, err
	}
	if fl > math.MaxInt64 {
		fl = math.MaxInt64
	}
	v := int64(fl)
	return &v, nil
}

// ErrorText accepts any non-null error value. Strings are used as-is, objects
// contribute their "message" field, and other scalars their JSON text. Only
// null, false and 0 mean "no error".
type ErrorText string

func (e *ErrorText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*e = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ErrorText(s)
		return nil
	case data[0] == '{':
		var obj struct {
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		var msg ErrorText
		if len(obj.Message) > 0 {
			if err := msg.UnmarshalJSON(obj.Message); err != nil {
				return err
			}
		}
		if msg == "" {
			var buf bytes.Buffer
			if err := json.Compact(&buf, data); err != nil {
				return err
			}
			msg = ErrorText(buf.String())
		}
		*e = msg
		return nil
	case data[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*e = ErrorText(buf.String())
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if f, _ := n.Float64(); f == 0 {
			*e = ""
			return nil
		}
		*e = ErrorText(n.String())
		return nil
	}
	// true
	*e = ErrorText(data)
	return nil
}

// Int64 returns a pointer to v, for building frames in tests and fakes.
func Int64(v int64) *int64 { return &v }
