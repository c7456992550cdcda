package schema

import (
	"errors"
	"fmt"
	"time"
)

// ErrSchemaViolation is returned when a value does not match its
// declared schema.
var ErrSchemaViolation = errors.New("value does not match declared schema")

// ValidateValue checks a structured value against a declared schema.
// A nil schema accepts any value; a non-nil schema rejects unknown keys,
// missing required fields, and kind mismatches. Validation happens at
// write time so reads never need to re-check payload shapes.
func ValidateValue(vs ValueSchema, value map[string]interface{}) error {
	if vs == nil {
		return nil
	}
	return validateObject(vs, value, "")
}

func validateObject(vs ValueSchema, value map[string]interface{}, path string) error {
	for key := range value {
		if _, declared := vs[key]; !declared {
			return fmt.Errorf("%w: unknown field %s", ErrSchemaViolation, joinPath(path, key))
		}
	}

	for key, spec := range vs {
		v, present := value[key]
		if !present || v == nil {
			if spec.Required {
				return fmt.Errorf("%w: missing required field %s", ErrSchemaViolation, joinPath(path, key))
			}
			continue
		}
		if err := validateField(spec, v, joinPath(path, key)); err != nil {
			return err
		}
	}
	return nil
}

func validateField(spec *FieldSpec, v interface{}, path string) error {
	switch spec.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%w: field %s must be a string", ErrSchemaViolation, path)
		}
	case KindNumber:
		if !isNumeric(v) {
			return fmt.Errorf("%w: field %s must be a number", ErrSchemaViolation, path)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%w: field %s must be a boolean", ErrSchemaViolation, path)
		}
	case KindDate:
		if !isDate(v) {
			return fmt.Errorf("%w: field %s must be an RFC 3339 date", ErrSchemaViolation, path)
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: field %s must be a string", ErrSchemaViolation, path)
		}
		for _, allowed := range spec.EnumValues {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("%w: field %s has value %q outside its enum", ErrSchemaViolation, path, s)
	case KindObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: field %s must be an object", ErrSchemaViolation, path)
		}
		return validateObject(spec.Fields, obj, path)
	default:
		return fmt.Errorf("%w: field %s has unknown kind %q", ErrSchemaViolation, path, spec.Kind)
	}
	return nil
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func isDate(v interface{}) bool {
	switch d := v.(type) {
	case time.Time:
		return true
	case string:
		if _, err := time.Parse(time.RFC3339, d); err == nil {
			return true
		}
		_, err := time.Parse("2006-01-02", d)
		return err == nil
	}
	return false
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
