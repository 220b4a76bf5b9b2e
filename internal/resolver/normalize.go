package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// wrapperKeys are the object keys an identifier may be nested under, in
// lookup order.
var wrapperKeys = []string{"$oid", "id", "_id", "pageId"}

// Normalize converts a caller-supplied identifier of unknown shape to its
// canonical string form. It never fails: anything it cannot interpret
// yields "", meaning no identifier was supplied.
func Normalize(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return cleanString(v)
	case *string:
		if v == nil {
			return ""
		}
		return cleanString(*v)
	case json.RawMessage:
		return normalizeBytes(v)
	case []byte:
		return normalizeBytes(v)
	case map[string]any:
		for _, k := range wrapperKeys {
			if inner, ok := v[k]; ok {
				return Normalize(inner)
			}
		}
		return ""
	case map[string]string:
		for _, k := range wrapperKeys {
			if inner, ok := v[k]; ok {
				return cleanString(inner)
			}
		}
		return ""
	case float64:
		return formatNumber(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return cleanString(v.String())
	case fmt.Stringer:
		return cleanString(v.String())
	default:
		return ""
	}
}

func cleanString(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	switch strings.ToLower(s) {
	case "null", "undefined":
		return ""
	}
	return s
}

func normalizeBytes(b []byte) string {
	var decoded any
	if err := json.Unmarshal(b, &decoded); err == nil {
		return Normalize(decoded)
	}
	return cleanString(string(b))
}

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}
