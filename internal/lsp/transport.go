package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const contentLengthHeader = "content-length"

// ReadMessage reads a single Content-Length framed message from r.
//
// It returns io.EOF when the stream ends before any header byte of a new
// message. ErrMissingContentLength and ErrMalformedMessage leave r
// positioned at the next frame, so callers may keep reading. Any other
// error means the stream is unusable.
func ReadMessage(r *bufio.Reader) (json.RawMessage, error) {
	contentLength := -1
	first := true
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if first && line == "" {
					return nil, io.EOF
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		first = false

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // End of headers
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.ToLower(strings.TrimSpace(name)) != contentLengthHeader {
			continue // Content-Type and unknown headers
		}
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
			contentLength = n
		}
	}

	if contentLength < 0 {
		return nil, ErrMissingContentLength
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %d byte body is not JSON", ErrMalformedMessage, len(body))
	}
	return body, nil
}

// encodeMessage serializes msg into a complete frame.
func encodeMessage(msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)
	return buf.Bytes(), nil
}

// WriteMessage frames msg and writes it to w in a single write. If msg
// cannot be serialized nothing is written.
func WriteMessage(w io.Writer, msg any) error {
	frame, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// isRecoverable reports whether a ReadMessage error affects only the
// current frame.
func isRecoverable(err error) bool {
	return errors.Is(err, ErrMissingContentLength) || errors.Is(err, ErrMalformedMessage)
}
