// Package attach turns local files into text that can be prepended to a chat
// message.
package attach

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxBytes caps the extracted text of one attachment.
const DefaultMaxBytes = 256 << 10

// ErrBinary is returned for files that are neither PDF nor UTF-8 text.
var ErrBinary = errors.New("attachment is not text or PDF")

// Attachment is one extracted file.
type Attachment struct {
	Name      string
	Text      string
	Truncated bool
}

// Load reads path. PDFs are converted to plain text; other files must be
// valid UTF-8. Text beyond maxBytes is cut at a rune boundary.
func Load(path string, maxBytes int) (Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	var (
		text []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = readPDF(path, maxBytes)
	} else {
		text, err = readText(path, maxBytes)
	}
	if err != nil {
		return Attachment{}, err
	}

	a := Attachment{Name: filepath.Base(path)}
	if len(text) > maxBytes {
		text = text[:maxBytes]
		for len(text) > 0 && !utf8.Valid(text) {
			text = text[:len(text)-1]
		}
		a.Truncated = true
	}
	a.Text = strings.TrimSpace(string(text))
	return a, nil
}

func readText(path string, maxBytes int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening attachment: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	check := data
	if len(check) > maxBytes {
		check = check[:maxBytes]
		for len(check) > 0 && !utf8.Valid(check) {
			check = check[:len(check)-1]
		}
	}
	if bytes.IndexByte(check, 0) >= 0 || !utf8.Valid(check) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrBinary)
	}
	return data, nil
}

func readPDF(path string, maxBytes int) ([]byte, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(plain, int64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}
	return data, nil
}

// Compose prepends each attachment to prompt as a fenced block labelled with
// the file name.
func Compose(prompt string, atts []Attachment) string {
	if len(atts) == 0 {
		return prompt
	}
	var b strings.Builder
	for _, a := range atts {
		fmt.Fprintf(&b, "File: %s\n```\n%s\n```\n", a.Name, a.Text)
		if a.Truncated {
			b.WriteString("(truncated)\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(prompt)
	return b.String()
}
