package fleet

import "strings"

// parseTextArray decodes a Postgres array literal of unquoted uuid/text
// elements, e.g. {a,b,c}. Sufficient for array_agg over id columns.
func parseTextArray(raw []byte) []string {
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return out
}
