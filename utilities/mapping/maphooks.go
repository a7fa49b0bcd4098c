package mapping

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// MapTimeFromJSON is a decoder hook that maps time data from JSON values, avoiding the issue
// of things appearing as errors/blank when dealing with native Go time types. This is based on
// the code at https://github.com/mitchellh/mapstructure/issues/41
func MapTimeFromJSON(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t == reflect.TypeOf(time.Time{}) && f == reflect.TypeOf("") {
		return time.Parse(time.RFC3339, data.(string))
	}

	return data, nil
}

// DecodeInto rehydrates data — typically a map[string]interface{} that
// came back from a JSON-backed snapshot or transport adapter rather than
// already being the concrete Go type — into a T, using MapTimeFromJSON so
// embedded timestamps survive the round trip. Aggregates whose
// SnapshotRestorer is driven by a backend that stores state as JSON (see
// snapshot/postgres) call this from RestoreSnapshot instead of a direct
// type assertion, which only works when the state is already concrete
// (e.g. the in-memory snapshot store, which never serializes at all).
func DecodeInto[T any](data any) (T, error) {
	var out T
	if typed, ok := data.(T); ok {
		return typed, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: MapTimeFromJSON,
		Result:     &out,
	})
	if err != nil {
		return out, fmt.Errorf("cqrskit/mapping: build decoder for %T: %w", out, err)
	}
	if err := decoder.Decode(data); err != nil {
		return out, fmt.Errorf("cqrskit/mapping: decode %T into %T: %w", data, out, err)
	}
	return out, nil
}
