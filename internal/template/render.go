package template

import (
	"sort"
	"strings"
)

// Render substitutes every <KEY> token in body, where KEY is a field name
// upper-cased. Recipient fields override global ones. Only string values
// are substituted; anything else leaves its token untouched, as do tokens
// with no matching field.
//
// Substitution is a single pass over body: text that comes from a field
// value is never scanned for tokens again. When two field names differ only
// in case, the one that sorts first wins.
func Render(body string, recipientFields, globalFields map[string]any) string {
	merged := make(map[string]string, len(globalFields)+len(recipientFields))
	for k, v := range globalFields {
		if s, ok := v.(string); ok {
			merged[k] = s
		}
	}
	for k, v := range recipientFields {
		if s, ok := v.(string); ok {
			merged[k] = s
		} else {
			// A non-string recipient value still shadows the global one.
			delete(merged, k)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		tok := Token(k)
		if seen[tok] {
			continue
		}
		seen[tok] = true
		pairs = append(pairs, tok, merged[k])
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// Token returns the placeholder spelling for a field name.
func Token(field string) string {
	return "<" + strings.ToUpper(field) + ">"
}
