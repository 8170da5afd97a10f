package entity

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
)

const dateLayout = "2006-01-02"

// ValidationError lists the problem with each offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Validate checks data against cfg and returns the normalized values.
// Empty optional values are dropped; unknown fields are rejected.
func Validate(cfg Config, data map[string]any) (map[string]any, error) {
	problems := map[string]string{}
	out := make(map[string]any, len(cfg.Fields))

	for key := range data {
		if _, ok := cfg.Field(key); !ok {
			problems[key] = "unknown field"
		}
	}

	for _, f := range cfg.Fields {
		raw, present := data[f.Name]
		if !present || isEmpty(raw) {
			if f.Required {
				problems[f.Name] = "is required"
			}
			continue
		}
		v, err := normalize(f, raw)
		if err != nil {
			problems[f.Name] = err.Error()
			continue
		}
		out[f.Name] = v
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}
	return out, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func normalize(f Field, raw any) (any, error) {
	switch f.Type {
	case FieldText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be text")
		}
		return strings.TrimSpace(s), nil
	case FieldEmail:
		s, ok := raw.(string)
		s = strings.ToLower(strings.TrimSpace(s))
		if !ok || !govalidator.IsEmail(s) {
			return nil, fmt.Errorf("must be a valid email")
		}
		return s, nil
	case FieldDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a date (YYYY-MM-DD)")
		}
		t, err := time.Parse(dateLayout, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("must be a date (YYYY-MM-DD)")
		}
		return t.Format(dateLayout), nil
	case FieldInt:
		return toInt(raw)
	case FieldBool:
		switch t := raw.(type) {
		case bool:
			return t, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "on", "1", "yes":
				return true, nil
			case "false", "off", "0", "no":
				return false, nil
			}
		}
		return nil, fmt.Errorf("must be true or false")
	case FieldRef:
		s, ok := raw.(string)
		s = strings.ToLower(strings.TrimSpace(s))
		if !ok || !govalidator.IsUUID(s) {
			return nil, fmt.Errorf("must reference a %s id", f.Ref)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

func toInt(raw any) (int64, error) {
	switch t := raw.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("must be a whole number")
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		return n, nil
	}
	return 0, fmt.Errorf("must be a whole number")
}

// SearchText is the lowercase text that free-text search matches against.
func SearchText(cfg Config, data map[string]any) string {
	parts := make([]string, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if !f.Searchable {
			continue
		}
		if s, ok := data[f.Name].(string); ok && s != "" {
			parts = append(parts, strings.ToLower(s))
		}
	}
	return strings.Join(parts, " ")
}

// Compare orders two field values of type t. Missing values sort first.
func Compare(t FieldType, a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch t {
	case FieldInt:
		x, _ := toInt(a)
		y, _ := toInt(b)
		return cmp.Compare(x, y)
	case FieldBool:
		x, _ := a.(bool)
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	}
	return strings.Compare(strings.ToLower(fmt.Sprint(a)), strings.ToLower(fmt.Sprint(b)))
}
