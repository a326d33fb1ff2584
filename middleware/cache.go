package middleware

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// decodeInto replaces the value dest points at with data. dest is left
// untouched when data does not decode.
func decodeInto(data []byte, dest any) bool {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	temp := reflect.New(rv.Type().Elem())
	if err := msgpack.Unmarshal(data, temp.Interface()); err != nil {
		return false
	}
	rv.Elem().Set(temp.Elem())
	return true
}

func encode(v any) ([]byte, bool) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, false
	}
	return data, true
}
