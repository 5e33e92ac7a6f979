package metastore

import (
	"fmt"
	"reflect"
	"strings"
)

const tagKey = "metastore"

// schemaMeta holds parsed struct tag metadata, cached per TypedIndex.
// Documents are encoded with encoding/json; the metastore tag only marks
// the fields that carry the document id and the tenant.
type schemaMeta struct {
	typ reflect.Type

	idIdx     int
	tenantIdx int // -1 if not present
}

// parseSchema reflects on T and extracts metastore struct tag metadata.
func parseSchema[T any]() (*schemaMeta, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, fmt.Errorf("metastore: type parameter is an interface")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("metastore: type %s is not a struct", t)
	}

	meta := &schemaMeta{typ: t, idIdx: -1, tenantIdx: -1}
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if tag == "" || tag == "-" {
			continue
		}
		if err := applyTag(meta, i, f, tag); err != nil {
			return nil, err
		}
	}
	return validateSchema(meta, t)
}

// applyTag processes a single struct field's metastore tag.
func applyTag(meta *schemaMeta, idx int, f reflect.StructField, tag string) error {
	if f.Type.Kind() != reflect.String {
		return fmt.Errorf("metastore: field %s tagged %q must be a string", f.Name, tag)
	}
	switch strings.TrimSpace(tag) {
	case "id":
		if meta.idIdx != -1 {
			return fmt.Errorf("metastore: duplicate id tag on field %s", f.Name)
		}
		meta.idIdx = idx
	case "tenant":
		if meta.tenantIdx != -1 {
			return fmt.Errorf("metastore: duplicate tenant tag on field %s", f.Name)
		}
		meta.tenantIdx = idx
	default:
		return fmt.Errorf("metastore: unknown tag %q on field %s", tag, f.Name)
	}
	return nil
}

func validateSchema(meta *schemaMeta, t reflect.Type) (*schemaMeta, error) {
	if meta.idIdx == -1 {
		return nil, fmt.Errorf("metastore: no field with `metastore:\"id\"` tag in %s", t)
	}
	if meta.idIdx == meta.tenantIdx {
		return nil, fmt.Errorf("metastore: id and tenant must be distinct fields in %s", t)
	}
	return meta, nil
}

func (m *schemaMeta) value(item any) reflect.Value {
	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v
}

// id returns the document id held by item.
func (m *schemaMeta) id(item any) string {
	return m.value(item).Field(m.idIdx).String()
}

// tenant returns the tenant held by item, empty when T has no tenant field.
func (m *schemaMeta) tenant(item any) string {
	if m.tenantIdx == -1 {
		return ""
	}
	return m.value(item).Field(m.tenantIdx).String()
}

// setID stores id into the struct pointed to by ptr.
func (m *schemaMeta) setID(ptr any, id string) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v = v.Elem()
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	v.Field(m.idIdx).SetString(id)
}
