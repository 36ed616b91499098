package model

import (
	"encoding/json"
	"strings"
)

// StringList accepts either a JSON array of strings or a single
// comma/newline-delimited string. Legacy form posts sent the latter.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = normalizeList(arr)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = SplitList(s)
	return nil
}

// SplitList breaks a delimited string into a trimmed, empty-free list.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	return normalizeList(fields)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
