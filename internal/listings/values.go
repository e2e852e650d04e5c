package listings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Value is one typed entry of a listing's values map.
type Value interface {
	Kind() enums.FieldType
	json.Marshaler
}

type (
	TextValue   string
	NumberValue float64
	SelectValue string
	BoolValue   bool
	DateValue   string
)

// LocationValue is stored as {"coordinates":{"lat":..,"lng":..}}.
type LocationValue struct {
	Lat float64
	Lng float64
}

// FileValue describes one uploaded asset.
type FileValue struct {
	URL          string `json:"url"`
	Path         string `json:"path,omitempty"`
	OriginalName string `json:"originalName,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

type FileListValue []FileValue

// RawValue carries values whose shape is not interpreted, such as multi
// checkbox selections or keys the current schema no longer declares.
type RawValue json.RawMessage

func (TextValue) Kind() enums.FieldType     { return enums.FieldTypeText }
func (NumberValue) Kind() enums.FieldType   { return enums.FieldTypeNumber }
func (SelectValue) Kind() enums.FieldType   { return enums.FieldTypeSelect }
func (BoolValue) Kind() enums.FieldType     { return enums.FieldTypeCheckbox }
func (DateValue) Kind() enums.FieldType     { return enums.FieldTypeDate }
func (LocationValue) Kind() enums.FieldType { return enums.FieldTypePoint }
func (FileValue) Kind() enums.FieldType     { return enums.FieldTypeFile }
func (FileListValue) Kind() enums.FieldType { return enums.FieldTypeFile }
func (RawValue) Kind() enums.FieldType      { return "" }

func (v TextValue) MarshalJSON() ([]byte, error)   { return json.Marshal(string(v)) }
func (v NumberValue) MarshalJSON() ([]byte, error) { return json.Marshal(float64(v)) }
func (v SelectValue) MarshalJSON() ([]byte, error) { return json.Marshal(string(v)) }
func (v BoolValue) MarshalJSON() ([]byte, error)   { return json.Marshal(bool(v)) }
func (v DateValue) MarshalJSON() ([]byte, error)   { return json.Marshal(string(v)) }

type coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type locationDoc struct {
	Coordinates *coordinates `json:"coordinates"`
}

func (v LocationValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationDoc{Coordinates: &coordinates{Lat: v.Lat, Lng: v.Lng}})
}

func (v FileValue) MarshalJSON() ([]byte, error) {
	type alias FileValue
	return json.Marshal(alias(v))
}

func (v FileListValue) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]FileValue(v))
}

func (v RawValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return []byte(v), nil
}

// Values is a listing's validated value map.
type Values map[string]Value

// Keys returns the value names in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text returns the string form of a text-like value.
func (v Values) Text(name string) (string, bool) {
	switch val := v[name].(type) {
	case TextValue:
		return string(val), true
	case SelectValue:
		return string(val), true
	case DateValue:
		return string(val), true
	}
	return "", false
}

func (v Values) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(v))
	for k, val := range v {
		if val == nil {
			out[k] = json.RawMessage("null")
			continue
		}
		encoded, err := val.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode value %q: %w", k, err)
		}
		out[k] = encoded
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes stored values without a schema, inferring variants
// from the JSON shape. Use DecodeValues when the field schema is known.
func (v *Values) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeValues(data, nil)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// DecodeValues decodes a stored values document, using fields to pick the
// variant for declared keys.
func DecodeValues(data []byte, fields []models.FieldSchema) (Values, error) {
	raw := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) > 0 && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode listing values: %w", err)
		}
	}
	types := make(map[string]enums.FieldType, len(fields))
	for _, f := range fields {
		types[f.Name] = f.Type
	}
	out := make(Values, len(raw))
	for k, msg := range raw {
		out[k] = decodeValue(types[k], msg)
	}
	return out, nil
}

func decodeValue(fieldType enums.FieldType, msg json.RawMessage) Value {
	var generic any
	if err := json.Unmarshal(msg, &generic); err != nil {
		return RawValue(msg)
	}
	switch fieldType {
	case enums.FieldTypeSelect, enums.FieldTypeRadio:
		if s, ok := generic.(string); ok {
			return SelectValue(s)
		}
	case enums.FieldTypeDate:
		if s, ok := generic.(string); ok {
			return DateValue(s)
		}
	}
	switch val := generic.(type) {
	case string:
		return TextValue(val)
	case float64:
		return NumberValue(val)
	case bool:
		return BoolValue(val)
	case map[string]any:
		if loc, ok := storedLocation(msg); ok {
			return loc
		}
		if file, ok := decodeFile(msg); ok {
			return file
		}
	case []any:
		if list, ok := decodeFileList(msg); ok {
			return list
		}
	}
	return RawValue(append(json.RawMessage(nil), msg...))
}

func storedLocation(msg json.RawMessage) (LocationValue, bool) {
	var doc locationDoc
	if err := json.Unmarshal(msg, &doc); err != nil || doc.Coordinates == nil {
		return LocationValue{}, false
	}
	return LocationValue{Lat: doc.Coordinates.Lat, Lng: doc.Coordinates.Lng}, true
}

func decodeFile(msg json.RawMessage) (FileValue, bool) {
	var f FileValue
	if err := json.Unmarshal(msg, &f); err != nil || f.URL == "" {
		return FileValue{}, false
	}
	return f, true
}

func decodeFileList(msg json.RawMessage) (FileListValue, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(msg, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	list := make(FileListValue, 0, len(items))
	for _, item := range items {
		f, ok := decodeFile(item)
		if !ok {
			return nil, false
		}
		list = append(list, f)
	}
	return list, true
}
