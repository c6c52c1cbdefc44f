// Package ai provides the provider fallback router and response repair
// pipeline for handling malformed model completions.
package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/prepwise/interview-engine/internal/domain"
)

// RepairStep is one named transformation of a raw completion. Steps run in
// order; each receives the previous step's output.
type RepairStep struct {
	Name  string
	Apply func(string) string
}

// RepairParser normalizes raw model output into parseable JSON. Models wrap
// JSON payloads in markdown fences, leading prose, unquoted keys, literal
// newlines inside values, and quoted numbers; each step targets one of these.
type RepairParser struct {
	steps []RepairStep
}

// NewRepairParser returns a parser with the default repair pipeline.
func NewRepairParser() *RepairParser {
	return &RepairParser{steps: []RepairStep{
		{Name: "strip_fences", Apply: stripFences},
		{Name: "extract_span", Apply: extractSpan},
		{Name: "quote_keys", Apply: quoteKeys},
		{Name: "collapse_newlines", Apply: collapseNewlines},
		{Name: "unquote_numbers", Apply: unquoteNumbers},
	}}
}

// Repair runs the full pipeline and returns the repaired text without
// parsing it.
func (p *RepairParser) Repair(raw string) string {
	out := raw
	for _, step := range p.steps {
		next := step.Apply(out)
		if next != out {
			slog.Debug("repair step applied", slog.String("step", step.Name))
		}
		out = next
	}
	return out
}

// Parse repairs raw and unmarshals the result into v. A completion that is
// already valid JSON passes through unchanged apart from trimming.
//
// A wrong-typed field is not fatal: encoding/json keeps decoding the rest
// of the document, so the partially filled value is returned and the caller
// defaults the field that stayed zero. Only syntactically broken documents
// come back as ErrUnparsableResponse.
func (p *RepairParser) Parse(raw string, v any) error {
	repaired := p.Repair(raw)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			slog.Debug("ignoring type mismatch in model output",
				slog.String("field", typeErr.Field))
			return nil
		}
		return fmt.Errorf("op=repair.parse: %v: %w", err, domain.ErrUnparsableResponse)
	}
	return nil
}

var (
	fenceRe     = regexp.MustCompile("```(?:json)?")
	keyRe       = regexp.MustCompile(`([{,\[]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	newlineRe   = regexp.MustCompile(`\n\s*`)
	quotedNumRe = regexp.MustCompile(`:\s*"(-?\d+(?:\.\d+)?)"`)
)

func stripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// extractSpan isolates the first balanced JSON object or array, dropping any
// surrounding prose. Brace matching is byte-naive; braces inside string
// values are rare enough in model output that the parse step catches the
// rest.
func extractSpan(s string) string {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')
	start := objStart
	open, close := byte('{'), byte('}')
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
		open, close = '[', ']'
	}
	if start == -1 {
		return s
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

func quoteKeys(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	return keyRe.ReplaceAllString(s, `$1"$2":`)
}

func collapseNewlines(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	return newlineRe.ReplaceAllString(s, " ")
}

func unquoteNumbers(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	return quotedNumRe.ReplaceAllString(s, `: $1`)
}
