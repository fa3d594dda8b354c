package projector

import (
	"encoding/json"
	"reflect"
)

// deepCopy defends against a handler returning a value that aliases
// structure from the state it was given. State is spec'd as a
// JSON-serializable value, so a marshal/unmarshal round trip is a correct
// and simple deep copy for any shape a handler can legally return.
//
// The round trip unmarshals back into v's own concrete type via reflection
// rather than into a bare any, so a handler that type-asserts its struct on
// every call keeps working after the first copy; unmarshaling into any
// would otherwise flatten every struct into a map[string]any on its first
// pass through here.
func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Ptr {
		out := reflect.New(rt.Elem())
		if err := json.Unmarshal(data, out.Interface()); err != nil {
			return nil, err
		}
		return out.Interface(), nil
	}

	out := reflect.New(rt)
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}
