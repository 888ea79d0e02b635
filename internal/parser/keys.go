package parser

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

type jsonField struct {
	name string
	typ  reflect.Type
}

var fieldCache sync.Map // reflect.Type -> []jsonField

func jsonFields(t reflect.Type) []jsonField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]jsonField)
	}
	fields := make([]jsonField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, jsonField{name: name, typ: f.Type})
	}
	fieldCache.Store(t, fields)
	return fields
}

// exactKeys reports whether every object key in data that folds to a field of t
// is spelled exactly like the field's json name. encoding/json matches keys
// case-insensitively, so {"VALUE": 1} would otherwise fill Value.
// Type mismatches are left for the struct decode to reject.
func exactKeys(data []byte, t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return true
		}
		fields := jsonFields(t)
		for key, raw := range obj {
			for _, f := range fields {
				if !strings.EqualFold(key, f.name) {
					continue
				}
				if key != f.name || !exactKeys(raw, f.typ) {
					return false
				}
			}
		}
	case reflect.Slice:
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return true
		}
		for _, item := range items {
			if !exactKeys(item, t.Elem()) {
				return false
			}
		}
	}
	return true
}
