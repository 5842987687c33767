package adaptive

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/swarmguard/meshstore/internal/attribute"
	"github.com/swarmguard/meshstore/internal/value"
)

// FieldMode selects how deep DefaultIndexingStrategy introspects a
// record.
type FieldMode string

const (
	// ModeTopLevel indexes only a struct's direct fields.
	ModeTopLevel FieldMode = "top"
	// ModeAll recurses into nested struct fields too.
	ModeAll FieldMode = "all"
)

// descriptionFieldPattern matches field names the strategy treats as
// long-form text, never worth indexing.
var descriptionFieldPattern = regexp.MustCompile(`(?i)description|content|body|payload|notes?`)

var dateFieldPattern = regexp.MustCompile(`(?i)date|time|_at$|At$`)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

const maxSampleTextLen = 100

// FieldSuggestion is one field DefaultIndexingStrategy recommends
// indexing, and the kind it picked.
type FieldSuggestion struct {
	FieldPath string
	IndexType string // "navigable" | "hash"
}

// DefaultIndexingStrategy introspects a first-seen record once and
// returns the navigable/hash suggestions every scalar field qualifies
// for: numbers and date-like strings get navigable, every
// other scalar gets hash, and suspected long-form text fields are
// skipped entirely.
func DefaultIndexingStrategy[R any](sample R, mode FieldMode) []FieldSuggestion {
	v := reflect.ValueOf(sample)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	var out []FieldSuggestion
	walkStruct(v, "", mode, &out)
	return out
}

func walkStruct(v reflect.Value, prefix string, mode FieldMode, out *[]FieldSuggestion) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		fv := v.Field(i)
		for fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				break
			}
			fv = fv.Elem()
		}
		if !fv.IsValid() {
			continue
		}

		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Time{}) {
			if mode == ModeAll {
				walkStruct(fv, path, mode, out)
			}
			continue
		}

		if skipAsDescription(f.Name, fv) {
			continue
		}

		kind, ok := classifyField(f.Name, fv)
		if !ok {
			continue
		}
		*out = append(*out, FieldSuggestion{FieldPath: path, IndexType: kind})
	}
}

func skipAsDescription(name string, fv reflect.Value) bool {
	if descriptionFieldPattern.MatchString(name) {
		return true
	}
	if fv.Kind() == reflect.String && len(fv.String()) > maxSampleTextLen {
		return true
	}
	return false
}

func classifyField(name string, fv reflect.Value) (string, bool) {
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "navigable", true
	case reflect.Bool:
		return "hash", true
	case reflect.String:
		s := fv.String()
		if isDateLike(name, s) {
			return "navigable", true
		}
		return "hash", true
	default:
		if _, ok := fv.Interface().(time.Time); ok {
			return "navigable", true
		}
		return "", false
	}
}

func isDateLike(fieldName, sample string) bool {
	if dateFieldPattern.MatchString(fieldName) {
		return true
	}
	return isoDatePattern.MatchString(sample)
}

// ReflectExtractor builds a single-valued attribute.Extractor[R] that
// reads fieldPath (dot-separated for nested fields) out of R via
// reflection, for wiring a DefaultIndexingStrategy suggestion into a
// real index. A record that does not carry the field, or whose field is
// a nil pointer, contributes nothing.
func ReflectExtractor[R any](fieldPath string) attribute.Extractor[R] {
	parts := strings.Split(fieldPath, ".")
	return attribute.Simple(fieldPath, func(r R) (value.Value, bool) {
		fv := reflect.ValueOf(r)
		for _, part := range parts {
			for fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					return value.Value{}, false
				}
				fv = fv.Elem()
			}
			if fv.Kind() != reflect.Struct {
				return value.Value{}, false
			}
			fv = fv.FieldByName(part)
			if !fv.IsValid() {
				return value.Value{}, false
			}
		}
		return reflectToValue(fv)
	})
}

func reflectToValue(fv reflect.Value) (value.Value, bool) {
	for fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return value.Value{}, false
		}
		fv = fv.Elem()
	}
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Int(fv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.Int(int64(fv.Uint())), true
	case reflect.Float32, reflect.Float64:
		return value.Float(fv.Float()), true
	case reflect.Bool:
		return value.Bool(fv.Bool()), true
	case reflect.String:
		return value.Text(fv.String()), true
	default:
		if t, ok := fv.Interface().(time.Time); ok {
			return value.Text(t.Format(time.RFC3339Nano)), true
		}
		return value.Value{}, false
	}
}
