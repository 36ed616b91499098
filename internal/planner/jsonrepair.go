package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// Generation responses are free-form text expected to contain one JSON
// document, often wrapped in a Markdown code fence and occasionally
// carrying trailing-comma syntax errors. CleanJSON strips the wrapping;
// ParseWithRepair retries parsing once after repairing commas.

var (
	openFence     = regexp.MustCompile("(?i)^\\s*```(?:json|javascript)?\\s*")
	closeFence    = regexp.MustCompile("\\s*```\\s*$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	bracketComma  = regexp.MustCompile(`([}\]])\s*,\s*([}\]])`)
)

// CleanJSON strips code fences and non-breaking spaces and removes
// trailing commas before closing brackets.
func CleanJSON(content string) string {
	s := openFence.ReplaceAllString(content, "")
	s = closeFence.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return trailingComma.ReplaceAllString(s, "$1")
}

// ParseWithRepair unmarshals raw into v, retrying once after comma
// repair. Anything still unparseable (e.g. unbalanced braces) is a
// generation failure.
func ParseWithRepair(raw string, v interface{}) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	fixed := trailingComma.ReplaceAllString(raw, "$1")
	fixed = bracketComma.ReplaceAllString(fixed, "$1$2")
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return errors.Wrap(err, "parse generation output")
	}
	return nil
}
