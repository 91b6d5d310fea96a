package book

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Authors and categories are kept as JSON array text in both stores.

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode list %q: %w", raw, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// searchTerms strips phrase quotes and required-term markers from an
// expression built by BuildPreciseQuery, leaving lower-case plain text.
func searchTerms(expr string) string {
	r := strings.NewReplacer(`"`, " ", "+", " ")
	return strings.ToLower(strings.Join(strings.Fields(r.Replace(expr)), " "))
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(s) + "%"
}
