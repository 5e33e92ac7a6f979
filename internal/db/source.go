package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/metastore/query"
)

// NewID returns an engine-assigned document id.
func NewID() string {
	return uuid.NewString()
}

// ValidateSource checks that src is a JSON object.
func ValidateSource(src []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(src, &m); err != nil || m == nil {
		return fmt.Errorf("source must be a JSON object: %w", ErrInvalidDocument)
	}
	return nil
}

// MergeSource merges patch into src: objects merge recursively, every other
// value (null included) replaces the existing one. changed is false when the
// merge leaves the document as it was.
func MergeSource(src, patch []byte) (merged []byte, changed bool, err error) {
	var doc, p map[string]any
	if err := decodeObject(src, &doc); err != nil {
		return nil, false, fmt.Errorf("merge source: %w", err)
	}
	if err := decodeObject(patch, &p); err != nil {
		return nil, false, fmt.Errorf("merge patch: %w", err)
	}
	before, err := json.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	mergeObject(doc, p)
	after, err := json.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	return after, !bytes.Equal(before, after), nil
}

func mergeObject(dst, patch map[string]any) {
	for k, v := range patch {
		if pv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeObject(dv, pv)
				continue
			}
		}
		dst[k] = v
	}
}

func decodeObject(data []byte, v *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if *v == nil {
		return ErrInvalidDocument
	}
	return nil
}

// FilterSource applies f to a stored document. Patterns are dotted paths
// and may use '*' wildcards. A disabled filter returns nil.
func FilterSource(src []byte, f *query.SourceFilter) ([]byte, error) {
	if f.IsZero() {
		return src, nil
	}
	if f.Disabled {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("filter source: %w", err)
	}
	out := filterObject(doc, "", len(f.Includes) == 0, f)
	return json.Marshal(out)
}

func filterObject(m map[string]any, prefix string, all bool, f *query.SourceFilter) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if matchAny(f.Excludes, p) {
			continue
		}
		included := all || matchAny(f.Includes, p)
		child, isObj := v.(map[string]any)
		switch {
		case included && isObj:
			out[k] = filterObject(child, p, true, f)
		case included:
			out[k] = v
		case isObj && includesBelow(f.Includes, p):
			if sub := filterObject(child, p, false, f); len(sub) > 0 {
				out[k] = sub
			}
		}
	}
	return out
}

func matchAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
	}
	return false
}

func includesBelow(patterns []string, p string) bool {
	for _, pat := range patterns {
		if strings.HasPrefix(pat, p+".") || strings.HasPrefix(pat, "*") {
			return true
		}
	}
	return false
}
