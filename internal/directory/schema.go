package directory

import (
	"fmt"
	"strconv"
)

// FieldDiff is the change set between two revisions of an asset type schema.
// Added and Removed are disjoint by construction; Backfill holds fields whose
// value must be present after the change (required flipped on, or the type
// changed while required).
type FieldDiff struct {
	Added    []AssetTypeField
	Removed  []AssetTypeField
	Backfill []AssetTypeField
}

// Empty reports whether applying the diff would never touch an asset.
func (d FieldDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Backfill) == 0
}

// NormalizeFieldUpdate resolves the field list submitted on an asset type
// edit against the current schema. Fields carrying an id must match an
// existing field, and each existing id may be claimed at most once; a repeated
// or unknown id fails with ErrConflict. Fields without an id (id < 0) are new
// and receive fresh ids above the current maximum, in submission order.
func NormalizeFieldUpdate(current, updated []AssetTypeField) ([]AssetTypeField, error) {
	unclaimed := make(map[int64]struct{}, len(current))
	next := int64(0)
	for _, f := range current {
		unclaimed[f.ID] = struct{}{}
		if f.ID > next {
			next = f.ID
		}
	}

	out := make([]AssetTypeField, 0, len(updated))
	for _, f := range updated {
		if !f.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown field type %d", ErrInvalidInput, f.Type)
		}
		if f.ID < 0 {
			next++
			f.ID = next
		} else {
			if _, ok := unclaimed[f.ID]; !ok {
				return nil, fmt.Errorf("%w: field id %d could not be found (duplicate or invalid id)", ErrConflict, f.ID)
			}
			delete(unclaimed, f.ID)
		}
		out = append(out, f)
	}
	return out, nil
}

// DiffFields computes the migration-relevant change set between the old and
// new field lists of an asset type.
func DiffFields(old, updated []AssetTypeField) FieldDiff {
	oldByID := make(map[int64]AssetTypeField, len(old))
	for _, f := range old {
		oldByID[f.ID] = f
	}
	newIDs := make(map[int64]struct{}, len(updated))

	var diff FieldDiff
	for _, f := range updated {
		newIDs[f.ID] = struct{}{}
		prev, existed := oldByID[f.ID]
		if !existed {
			diff.Added = append(diff.Added, f)
			continue
		}
		becameRequired := !prev.Required && f.Required
		retypedRequired := prev.Type != f.Type && f.Required
		if becameRequired || retypedRequired {
			diff.Backfill = append(diff.Backfill, f)
		}
	}
	for _, f := range old {
		if _, ok := newIDs[f.ID]; !ok {
			diff.Removed = append(diff.Removed, f)
		}
	}
	return diff
}

// DefaultValue returns the placeholder inserted for a field during migration.
func DefaultValue(t FieldType) any {
	switch t {
	case FieldNumber:
		return float64(0)
	case FieldCheckfield:
		return false
	default:
		return ""
	}
}

// MigrateFields rewrites one asset's field map according to the diff and
// reports whether anything changed. Added fields receive a type default when
// absent, removed fields lose their key, backfill fields receive the default
// only when the asset carries no value for them. The input map is not
// mutated.
func MigrateFields(fields FieldValues, diff FieldDiff) (FieldValues, bool) {
	if diff.Empty() {
		return fields, false
	}
	out := fields.Clone()
	if out == nil {
		out = FieldValues{}
	}
	changed := false
	for _, f := range diff.Added {
		key := FieldKey(f.ID)
		if v, ok := out[key]; !ok || v == nil {
			out[key] = DefaultValue(f.Type)
			changed = true
		}
	}
	for _, f := range diff.Removed {
		key := FieldKey(f.ID)
		if _, ok := out[key]; ok {
			delete(out, key)
			changed = true
		}
	}
	for _, f := range diff.Backfill {
		key := FieldKey(f.ID)
		if v, ok := out[key]; !ok || v == nil {
			out[key] = DefaultValue(f.Type)
			changed = true
		}
	}
	if !changed {
		return fields, false
	}
	return out, true
}

// FieldKey returns the JSON object key for a field id.
func FieldKey(id int64) string { return strconv.FormatInt(id, 10) }

// ValidateAssetFields checks one asset's field map against its type schema:
// every required field key must be present, no value may be nil, no key may
// reference an unknown field, and each value's runtime type must match the
// field's declared type.
func ValidateAssetFields(typeFields []AssetTypeField, fields FieldValues) error {
	byKey := make(map[string]AssetTypeField, len(typeFields))
	for _, f := range typeFields {
		byKey[FieldKey(f.ID)] = f
	}
	for _, f := range typeFields {
		if !f.Required {
			continue
		}
		if _, ok := fields[FieldKey(f.ID)]; !ok {
			return fmt.Errorf("%w: required field %d (%s) is missing", ErrInvalidInput, f.ID, f.Name)
		}
	}
	for key, value := range fields {
		field, ok := byKey[key]
		if !ok {
			return fmt.Errorf("%w: unknown field %s", ErrInvalidInput, key)
		}
		if value == nil {
			return fmt.Errorf("%w: field %s has no value", ErrInvalidInput, key)
		}
		if !valueMatches(field.Type, value) {
			return fmt.Errorf("%w: field %s must be of type %s", ErrInvalidInput, key, typeName(field.Type))
		}
	}
	return nil
}

func valueMatches(t FieldType, v any) bool {
	switch t {
	case FieldText:
		_, ok := v.(string)
		return ok
	case FieldCheckfield:
		_, ok := v.(bool)
		return ok
	case FieldNumber:
		switch v.(type) {
		case float64, int64, int, float32:
			return true
		}
		return false
	default:
		return false
	}
}

func typeName(t FieldType) string {
	switch t {
	case FieldText:
		return "text"
	case FieldNumber:
		return "number"
	case FieldCheckfield:
		return "checkfield"
	default:
		return "unknown"
	}
}
