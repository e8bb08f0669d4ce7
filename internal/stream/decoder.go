// Package stream decodes the line-framed JSON streams produced by the chat,
// generate and pull endpoints.
//
// Two framings exist. The dashboard API speaks SSE-style lines
// ("data: {...}"), the inference server underneath speaks bare NDJSON. Both
// are read by the same Decoder; lines that cannot be parsed are dropped and
// decoding continues with the next line.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/rs/zerolog"
)

// Framing selects how a line maps to a JSON payload.
type Framing int

const (
	// SSE lines carry the payload after a literal "data: " prefix.
	SSE Framing = iota
	// NDJSON lines are the payload.
	NDJSON
)

func (f Framing) String() string {
	switch f {
	case SSE:
		return "sse"
	case NDJSON:
		return "ndjson"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// DataPrefix starts every payload line in SSE framing.
const DataPrefix = "data: "

var (
	// ErrBlank is returned by ParseLine for empty lines. They separate
	// events and are never counted as dropped.
	ErrBlank = errors.New("stream: blank line")
	// ErrNoPrefix is returned for SSE lines without the data prefix.
	ErrNoPrefix = errors.New("stream: missing data prefix")
	// ErrNotObject is returned when the payload is not a JSON object.
	ErrNotObject = errors.New("stream: payload is not a JSON object")
)

// ParseLine turns one complete line (with or without its trailing newline)
// into a Frame.
func ParseLine(line []byte, framing Framing) (Frame, error) {
	f, _, err := parseLine(line, framing)
	return f, err
}

func parseLine(line []byte, framing Framing) (Frame, []byte, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return Frame{}, nil, ErrBlank
	}

	payload := line
	if framing == SSE {
		if !bytes.HasPrefix(line, []byte(DataPrefix)) {
			return Frame{}, nil, ErrNoPrefix
		}
		payload = line[len(DataPrefix):]
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return Frame{}, nil, ErrNotObject
	}

	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, nil, fmt.Errorf("stream: decoding payload: %w", err)
	}
	return f, payload, nil
}

// Decoder yields frames from a response body in arrival order. It is not
// safe for concurrent use and cannot be restarted.
type Decoder struct {
	r       *bufio.Reader
	framing Framing
	log     zerolog.Logger

	frame   Frame
	raw     []byte
	err     error
	done    bool
	dropped int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithFraming overrides the default SSE framing.
func WithFraming(f Framing) Option {
	return func(d *Decoder) { d.framing = f }
}

// WithLogger installs a logger for dropped-line diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Decoder) { d.log = l }
}

// NewDecoder reads frames from r. The reader is usually an HTTP response body
// whose request carries the same context later passed to Next, so that
// cancellation also unblocks a pending read.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:       bufio.NewReader(r),
		framing: SSE,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next advances to the next frame. It returns false when the stream is
// exhausted, ctx is done or the underlying read fails; Err tells which.
func (d *Decoder) Next(ctx context.Context) bool {
	for !d.done {
		if err := ctx.Err(); err != nil {
			d.finish(err)
			return false
		}

		line, err := d.r.ReadBytes('\n')
		if err != nil {
			// Whatever is left without a newline is an incomplete frame.
			if len(line) > 0 {
				d.log.Debug().Int("bytes", len(line)).Msg("stream: discarding incomplete trailing line")
			}
			if errors.Is(err, io.EOF) {
				err = nil
			} else if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			d.finish(err)
			return false
		}

		f, raw, perr := parseLine(line, d.framing)
		switch {
		case perr == nil:
			d.frame = f
			d.raw = raw
			return true
		case errors.Is(perr, ErrBlank):
		default:
			d.dropped++
			d.log.Debug().Err(perr).Str("framing", d.framing.String()).Msg("stream: dropping malformed line")
		}
	}
	return false
}

func (d *Decoder) finish(err error) {
	d.done = true
	d.err = err
	d.frame = Frame{}
	d.raw = nil
}

// Frame returns the frame produced by the last successful Next.
func (d *Decoder) Frame() Frame { return d.frame }

// Raw returns the JSON payload of the last frame exactly as received, without
// framing. It is only valid until the next call to Next.
func (d *Decoder) Raw() []byte { return d.raw }

// Err returns the error that ended the stream, or nil on a clean end.
func (d *Decoder) Err() error { return d.err }

// Dropped returns how many non-blank lines were discarded so far.
func (d *Decoder) Dropped() int { return d.dropped }

// Frames adapts the decoder to a range-over-func sequence. Check Err after
// the loop.
func (d *Decoder) Frames(ctx context.Context) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for d.Next(ctx) {
			if !yield(d.frame) {
				return
			}
		}
	}
}
