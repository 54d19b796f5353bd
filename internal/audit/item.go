package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ItemID is the canonical string form of an audit item identifier. The
// backend may send ids as JSON strings or numbers; both decode to the same
// ItemID when they carry the same digits.
type ItemID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("audit: id must not be null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("audit: id must be a string or number: %w", err)
	}
	*id = ItemID(numberKey(n))
	return nil
}

// numberKey renders a JSON number by value, so 1e3 and 1000.0 both become
// "1000". Integer literals are kept verbatim to preserve ids beyond float64
// precision.
func numberKey(n json.Number) string {
	raw := n.String()
	if !strings.ContainsAny(raw, ".eE") {
		return raw
	}
	f, err := n.Float64()
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// String returns the identifier as used for expansion lookups.
func (id ItemID) String() string {
	return string(id)
}

// KeyOf converts any identifier value to the string form used for lookups.
func KeyOf(id any) string {
	switch v := id.(type) {
	case ItemID:
		return string(v)
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return numberKey(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Measurement holds a sensor value that may arrive as a number or a string.
type Measurement struct {
	raw    string
	num    float64
	isNum  bool
	quoted bool
	set    bool
}

// NewMeasurement builds a numeric measurement.
func NewMeasurement(v float64) Measurement {
	return Measurement{raw: strconv.FormatFloat(v, 'f', -1, 64), num: v, isNum: true, set: true}
}

// UnmarshalJSON accepts a JSON number, string or null.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Measurement{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = Measurement{raw: s, quoted: true, set: true}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			m.num = f
			m.isNum = true
		}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("audit: measurement must be a string or number: %w", err)
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	*m = Measurement{raw: n.String(), num: f, isNum: true, set: true}
	return nil
}

// MarshalJSON writes numbers back as numbers and strings as strings.
func (m Measurement) MarshalJSON() ([]byte, error) {
	if !m.set {
		return []byte("null"), nil
	}
	if m.quoted || !m.isNum {
		return json.Marshal(m.raw)
	}
	return []byte(m.raw), nil
}

// Valid reports whether a value was present.
func (m Measurement) Valid() bool {
	return m.set
}

// Float returns the numeric value and whether it is numeric.
func (m Measurement) Float() (float64, bool) {
	return m.num, m.isNum
}

// String returns the value verbatim, or "-" when absent.
func (m Measurement) String() string {
	if !m.set || m.raw == "" {
		return "-"
	}
	return m.raw
}

// Item is one audit event. Fields the viewer does not know about are kept in
// Extra and the full record in Raw so detail views can show it verbatim.
type Item struct {
	ID          ItemID
	ReceivedAt  string
	Channel     string
	Module      string
	Temperature Measurement
	Humidity    Measurement
	Pressure    Measurement
	Extra       map[string]json.RawMessage
	Raw         json.RawMessage
}

var knownItemFields = map[string]struct{}{
	"id":          {},
	"receivedAt":  {},
	"channel":     {},
	"module":      {},
	"temperature": {},
	"humidity":    {},
	"pressure":    {},
}

// UnmarshalJSON decodes an open record, requiring only "id".
func (it *Item) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("audit: item must be an object")
	}
	rawID, ok := fields["id"]
	if !ok {
		return errors.New("audit: item missing id")
	}
	var out Item
	if err := json.Unmarshal(rawID, &out.ID); err != nil {
		return err
	}
	if err := decodeOptionalString(fields, "receivedAt", &out.ReceivedAt); err != nil {
		return err
	}
	if err := decodeOptionalString(fields, "channel", &out.Channel); err != nil {
		return err
	}
	if err := decodeOptionalString(fields, "module", &out.Module); err != nil {
		return err
	}
	for name, dest := range map[string]*Measurement{
		"temperature": &out.Temperature,
		"humidity":    &out.Humidity,
		"pressure":    &out.Pressure,
	} {
		if raw, ok := fields[name]; ok {
			if err := json.Unmarshal(raw, dest); err != nil {
				return fmt.Errorf("audit: field %s: %w", name, err)
			}
		}
	}
	for name, raw := range fields {
		if _, known := knownItemFields[name]; known {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[name] = raw
	}
	out.Raw = append(json.RawMessage(nil), data...)
	*it = out
	return nil
}

// MarshalJSON writes the verbatim record when one was decoded.
func (it Item) MarshalJSON() ([]byte, error) {
	if len(it.Raw) > 0 {
		return it.Raw, nil
	}
	fields := make(map[string]any, len(it.Extra)+7)
	for name, raw := range it.Extra {
		fields[name] = raw
	}
	fields["id"] = string(it.ID)
	if it.ReceivedAt != "" {
		fields["receivedAt"] = it.ReceivedAt
	}
	if it.Channel != "" {
		fields["channel"] = it.Channel
	}
	if it.Module != "" {
		fields["module"] = it.Module
	}
	if it.Temperature.Valid() {
		fields["temperature"] = it.Temperature
	}
	if it.Humidity.Valid() {
		fields["humidity"] = it.Humidity
	}
	if it.Pressure.Valid() {
		fields["pressure"] = it.Pressure
	}
	return json.Marshal(fields)
}

// Detail renders the whole record as indented JSON.
func (it Item) Detail() string {
	raw, err := json.Marshal(it)
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func decodeOptionalString(fields map[string]json.RawMessage, name string, dest *string) error {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// non-string scalars keep their literal text
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '[' {
			*dest = string(trimmed)
			return nil
		}
		return fmt.Errorf("audit: field %s: %w", name, err)
	}
	return nil
}

// Page is one page of audit events as returned by the backend.
type Page struct {
	Items         []Item `json:"items"`
	Page          int    `json:"page"`
	Size          int    `json:"size,omitempty"`
	TotalPages    int    `json:"totalPages"`
	TotalElements int64  `json:"totalElements"`
}

type pageWire struct {
	Items         *[]Item `json:"items"`
	Page          *int    `json:"page"`
	Size          int     `json:"size"`
	TotalPages    *int    `json:"totalPages"`
	TotalElements *int64  `json:"totalElements"`
}

// DecodePage parses a response body, requiring every paging field.
func DecodePage(data []byte) (*Page, error) {
	var wire pageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ParseError{Err: err}
	}
	switch {
	case wire.Items == nil:
		return nil, &ParseError{Err: errors.New("missing items")}
	case wire.Page == nil:
		return nil, &ParseError{Err: errors.New("missing page")}
	case wire.TotalPages == nil:
		return nil, &ParseError{Err: errors.New("missing totalPages")}
	case wire.TotalElements == nil:
		return nil, &ParseError{Err: errors.New("missing totalElements")}
	}
	if *wire.TotalPages < 0 || *wire.TotalElements < 0 {
		return nil, &ParseError{Err: errors.New("negative totals")}
	}
	return &Page{
		Items:         *wire.Items,
		Page:          *wire.Page,
		Size:          wire.Size,
		TotalPages:    *wire.TotalPages,
		TotalElements: *wire.TotalElements,
	}, nil
}
