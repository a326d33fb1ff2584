package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shrek82/jmap/model"
	"github.com/vmihailenco/msgpack/v5"
)

// Record is a dynamic row: column names in result order, each with the value
// the driver produced. Text arrives as string, binary as []byte, NULL as nil.
type Record struct {
	columns []string
	values  []any
}

// NewRecord returns an empty record with room for n columns.
func NewRecord(n int) *Record {
	return &Record{
		columns: make([]string, 0, n),
		values:  make([]any, 0, n),
	}
}

// Len returns the number of columns.
func (r *Record) Len() int {
	return len(r.columns)
}

// Columns returns the column names in order.
func (r *Record) Columns() []string {
	return r.columns
}

// Values returns the values in column order.
func (r *Record) Values() []any {
	return r.values
}

// At returns the name and value of the i-th column.
func (r *Record) At(i int) (string, any) {
	return r.columns[i], r.values[i]
}

// Get returns the value of the first column matching name, ignoring case and
// underscores.
func (r *Record) Get(name string) (any, bool) {
	if i := r.index(name); i >= 0 {
		return r.values[i], true
	}
	return nil, false
}

// Set replaces the value of a matching column or appends a new column.
func (r *Record) Set(name string, value any) {
	if i := r.index(name); i >= 0 {
		r.values[i] = value
		return
	}
	r.columns = append(r.columns, name)
	r.values = append(r.values, value)
}

// Map copies the record into a map keyed by column name.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

func (r *Record) index(name string) int {
	for i, c := range r.columns {
		if c == name {
			return i
		}
	}
	key := model.Normalize(name)
	for i, c := range r.columns {
		if model.Normalize(c) == key {
			return i
		}
	}
	return -1
}

// MarshalJSON writes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping key order. Numbers become int64 when
// integral and float64 otherwise.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record must be a JSON object")
	}
	r.columns, r.values = r.columns[:0], r.values[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if f, err := n.Float64(); err == nil {
				v = f
			} else {
				v = n.String()
			}
		}
		r.columns = append(r.columns, key)
		r.values = append(r.values, v)
	}
	_, err = dec.Token()
	return err
}

var (
	_ msgpack.CustomEncoder = (*Record)(nil)
	_ msgpack.CustomDecoder = (*Record)(nil)
)

// EncodeMsgpack writes the record as a flat array of name, value pairs.
func (r *Record) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2 * len(r.columns)); err != nil {
		return err
	}
	for i, c := range r.columns {
		if err := enc.EncodeString(c); err != nil {
			return err
		}
		if err := enc.Encode(r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads the form written by EncodeMsgpack.
func (r *Record) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	r.columns = make([]string, 0, n/2)
	r.values = make([]any, 0, n/2)
	for i := 0; i < n/2; i++ {
		c, err := dec.DecodeString()
		if err != nil {
			return err
		}
		v, err := dec.DecodeInterface()
		if err != nil {
			return err
		}
		r.columns = append(r.columns, c)
		r.values = append(r.values, v)
	}
	return nil
}
