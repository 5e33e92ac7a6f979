package valkey

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/query"
)

// buildQuery translates a query tree into FT.SEARCH query syntax. Index
// attributes are named after the document path with '.' replaced by '_';
// string and bool fields are TAG attributes, numbers are NUMERIC and match
// targets are TEXT.
func buildQuery(q query.Query) (string, error) {
	if q == nil {
		return "*", nil
	}
	s, err := buildClause(q)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "*", nil
	}
	return s, nil
}

func buildClause(q query.Query) (string, error) {
	switch c := q.(type) {
	case *query.MatchAll:
		return "", nil
	case *query.Term:
		return buildValueFilter(c.Field, c.Value)
	case *query.Terms:
		return buildTermsFilter(c)
	case *query.Match:
		return buildMatchFilter(c), nil
	case *query.Range:
		return buildRangeFilter(c)
	case *query.Bool:
		return buildBool(c)
	default:
		return "", fmt.Errorf("%s clause: %w", q.Kind(), db.ErrUnsupported)
	}
}

func buildBool(b *query.Bool) (string, error) {
	var parts []string
	for _, group := range [][]query.Query{b.Must, b.Filter} {
		for _, c := range group {
			s, err := buildClause(c)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, wrap(s))
			}
		}
	}

	// should only constrains membership when nothing else does
	if len(parts) == 0 && len(b.Should) > 0 {
		should := make([]string, 0, len(b.Should))
		for _, c := range b.Should {
			s, err := buildClause(c)
			if err != nil {
				return "", err
			}
			if s == "" {
				should = nil
				break
			}
			should = append(should, wrap(s))
		}
		if len(should) > 0 {
			parts = append(parts, "("+strings.Join(should, " | ")+")")
		}
	}

	for _, c := range b.MustNot {
		s, err := buildClause(c)
		if err != nil {
			return "", err
		}
		if s == "" {
			s = "*"
		}
		parts = append(parts, "-"+wrap(s))
	}
	return strings.Join(parts, " "), nil
}

func wrap(s string) string {
	if strings.ContainsAny(s, " |") {
		return "(" + s + ")"
	}
	return s
}

func attr(field string) string {
	return strings.ReplaceAll(field, ".", "_")
}

func buildValueFilter(field string, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return buildTagFilter(attr(field), x), nil
	case bool:
		return buildTagFilter(attr(field), fmt.Sprint(x)), nil
	}
	f, ok := toFloat(v)
	if !ok {
		return "", fmt.Errorf("term value %T: %w", v, db.ErrUnsupported)
	}
	return fmt.Sprintf("@%s:[%g %g]", attr(field), f, f), nil
}

func buildTermsFilter(t *query.Terms) (string, error) {
	tags := make([]string, 0, len(t.Values))
	ors := make([]string, 0, len(t.Values))
	for _, v := range t.Values {
		switch x := v.(type) {
		case string:
			tags = append(tags, tagEscaper.Replace(x))
		case bool:
			tags = append(tags, fmt.Sprint(x))
		default:
			s, err := buildValueFilter(t.Field, v)
			if err != nil {
				return "", err
			}
			ors = append(ors, s)
		}
	}
	if len(tags) > 0 {
		ors = append(ors, fmt.Sprintf("@%s:{%s}", attr(t.Field), strings.Join(tags, " | ")))
	}
	if len(ors) == 1 {
		return ors[0], nil
	}
	return "(" + strings.Join(ors, " | ") + ")", nil
}

func buildMatchFilter(m *query.Match) string {
	tokens := strings.Fields(strings.ToLower(m.Text))
	for i, tok := range tokens {
		tokens[i] = escapeQuery(tok)
	}
	return fmt.Sprintf("@%s:(%s)", attr(m.Field), strings.Join(tokens, "|"))
}

func buildRangeFilter(r *query.Range) (string, error) {
	minBound, maxBound := "-inf", "+inf"
	bound := func(v any, exclusive bool, dst *string) error {
		if v == nil {
			return nil
		}
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("range bound %T: %w", v, db.ErrUnsupported)
		}
		*dst = fmt.Sprintf("%g", f)
		if exclusive {
			*dst = "(" + *dst
		}
		return nil
	}
	if r.GT != nil {
		if err := bound(r.GT, true, &minBound); err != nil {
			return "", err
		}
	} else if err := bound(r.GTE, false, &minBound); err != nil {
		return "", err
	}
	if r.LT != nil {
		if err := bound(r.LT, true, &maxBound); err != nil {
			return "", err
		}
	} else if err := bound(r.LTE, false, &maxBound); err != nil {
		return "", err
	}
	return fmt.Sprintf("@%s:[%s %s]", attr(r.Field), minBound, maxBound), nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)
