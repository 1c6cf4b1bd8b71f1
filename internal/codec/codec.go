// Package codec converts between the review data model and its wire and
// storage representations. Model output is untrusted: it is only ever
// parsed as JSON data and validated before being handed to callers.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"prreview/internal/model"
)

// MalformedAnalysisError reports model output that does not match the
// findings schema. File is empty when the error comes straight from
// DecodeFindings; the analyzer fills it in.
type MalformedAnalysisError struct {
	File   string
	Detail string
}

func (e *MalformedAnalysisError) Error() string {
	if e.File == "" {
		return "malformed analysis: " + e.Detail
	}
	return fmt.Sprintf("malformed analysis for %s: %s", e.File, e.Detail)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// wireFinding is the shape the model is asked to produce. Line is kept raw
// because models emit it as a number, a numeric string or null.
type wireFinding struct {
	Type        string          `json:"type"`
	Line        json.RawMessage `json:"line"`
	Description string          `json:"description"`
	Suggestion  string          `json:"suggestion"`
}

// DecodeFindings parses raw model text into findings. A single fenced-code
// wrapper is stripped; anything else that is not a JSON array of findings
// (or an object holding one under "issues" or "findings") is rejected.
// On error no findings are returned.
func DecodeFindings(raw string) ([]model.FileFinding, error) {
	payload := stripFence(raw)
	if payload == "" {
		return nil, malformed("empty response")
	}

	var items []*wireFinding
	switch payload[0] {
	case '[':
		if err := decodeStrict(payload, &items); err != nil {
			return nil, malformed("invalid findings array: %v", err)
		}
	case '{':
		var wrapper struct {
			Issues   []*wireFinding `json:"issues"`
			Findings []*wireFinding `json:"findings"`
		}
		if err := decodeStrict(payload, &wrapper); err != nil {
			return nil, malformed("invalid findings object: %v", err)
		}
		switch {
		case wrapper.Issues != nil:
			items = wrapper.Issues
		case wrapper.Findings != nil:
			items = wrapper.Findings
		default:
			return nil, malformed("object has no issues or findings array")
		}
	default:
		return nil, malformed("expected a JSON array of findings")
	}

	findings := make([]model.FileFinding, 0, len(items))
	for i, item := range items {
		if item == nil {
			return nil, malformed("finding %d is null", i)
		}
		f, err := item.toFinding()
		if err != nil {
			return nil, malformed("finding %d: %v", i, err)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func (w *wireFinding) toFinding() (model.FileFinding, error) {
	f := model.FileFinding{
		Type:        strings.TrimSpace(w.Type),
		Description: strings.TrimSpace(w.Description),
		Suggestion:  strings.TrimSpace(w.Suggestion),
	}

	line, err := parseLine(w.Line)
	if err != nil {
		return model.FileFinding{}, err
	}
	f.Line = line

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return model.FileFinding{}, fmt.Errorf("field %s failed on '%s' validation", strings.ToLower(fe.Field()), fe.Tag())
		}
		return model.FileFinding{}, err
	}
	return f, nil
}

func parseLine(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("line must be an integer, got %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("line must be an integer, got %q", s)
	}
	return &n, nil
}

// stripFence removes surrounding whitespace and one ``` or ```json fence.
// The fence may sit on the same line as the payload.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = s[len("```"):]

	// Optional language tag, ended by whitespace.
	tag := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	})
	if tag > 0 && strings.ContainsRune(" \t\r\n", rune(s[tag])) {
		s = s[tag:]
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeStrict decodes exactly one JSON value and rejects trailing data.
func decodeStrict(s string, v any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func malformed(format string, args ...any) error {
	return &MalformedAnalysisError{Detail: fmt.Sprintf(format, args...)}
}
