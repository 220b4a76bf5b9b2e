package notion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// PropertySchema describes one column of a database.
type PropertySchema struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Properties is a database property schema in the order the API returned it.
// Notion sends the schema as a JSON object; the key order is kept so that
// "first property of a type" is stable between calls.
type Properties []PropertySchema

// UnmarshalJSON decodes the properties object preserving key order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}

	var out Properties
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: unexpected key %v", keyTok)
		}
		var prop PropertySchema
		if err := dec.Decode(&prop); err != nil {
			return fmt.Errorf("properties: decoding %q: %w", key, err)
		}
		if prop.Name == "" {
			prop.Name = key
		}
		out = append(out, prop)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// Value builders for page properties.

type text struct {
	Content string `json:"content"`
}

type richText struct {
	Type string `json:"type"`
	Text text   `json:"text"`
}

func plain(s string) []richText {
	return []richText{{Type: "text", Text: text{Content: s}}}
}

// TitleValue builds a title property value.
func TitleValue(s string) map[string]any {
	return map[string]any{"title": plain(s)}
}

// RichTextValue builds a rich_text property value.
func RichTextValue(s string) map[string]any {
	return map[string]any{"rich_text": plain(s)}
}

// DateValue builds a single-date property value.
func DateValue(t time.Time) map[string]any {
	return map[string]any{"date": map[string]any{"start": t.UTC().Format(time.RFC3339)}}
}

// DateRangeValue builds a date property value spanning start..end.
func DateRangeValue(start, end time.Time) map[string]any {
	return map[string]any{"date": map[string]any{
		"start": start.UTC().Format(time.RFC3339),
		"end":   end.UTC().Format(time.RFC3339),
	}}
}

// NumberValue builds a number property value.
func NumberValue(v float64) map[string]any {
	return map[string]any{"number": v}
}

// RelationValue links to the given page ids.
func RelationValue(pageIDs ...string) map[string]any {
	rel := make([]map[string]string, 0, len(pageIDs))
	for _, id := range pageIDs {
		rel = append(rel, map[string]string{"id": id})
	}
	return map[string]any{"relation": rel}
}

// SelectValue picks a select option by name.
func SelectValue(name string) map[string]any {
	return map[string]any{"select": map[string]string{"name": name}}
}

// MultiSelectValue picks multi_select options by name.
func MultiSelectValue(names ...string) map[string]any {
	opts := make([]map[string]string, 0, len(names))
	for _, n := range names {
		opts = append(opts, map[string]string{"name": n})
	}
	return map[string]any{"multi_select": opts}
}

// TitleFilter matches pages whose title property equals title.
func TitleFilter(property, title string) map[string]any {
	return map[string]any{
		"property": property,
		"title":    map[string]string{"equals": title},
	}
}
