package transform

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnknownCodec is returned when a field names a codec that is not registered.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec is a pair of pure conversions for one field. Decode turns the wire
// value into the UI value; Encode reverses it. Both pass nil through.
type Codec interface {
	Decode(v any) (any, error)
	Encode(v any) (any, error)
}

// CodecFuncs adapts two functions to Codec.
type CodecFuncs struct {
	DecodeFunc func(any) (any, error)
	EncodeFunc func(any) (any, error)
}

func (c CodecFuncs) Decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return c.DecodeFunc(v)
}

func (c CodecFuncs) Encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return c.EncodeFunc(v)
}

// Built-in codec names.
const (
	CodecISODate      = "iso_date"
	CodecBoolString   = "bool_string"
	CodecNumberString = "number_string"
	CodecCSV          = "csv"
)

// Registry maps codec names to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns a registry holding the built-in codecs.
func NewRegistry() *Registry {
	return &Registry{codecs: map[string]Codec{
		CodecISODate:      isoDate,
		CodecBoolString:   boolString,
		CodecNumberString: numberString,
		CodecCSV:          csvList,
	}}
}

// Register adds or replaces a codec.
func (r *Registry) Register(name string, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[name] = c
}

// Lookup resolves a codec by name.
func (r *Registry) Lookup(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names lists the registered codec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var isoDate = CodecFuncs{
	DecodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, fmt.Errorf("iso_date: %w", err)
			}
			return t, nil
		}
		return nil, fmt.Errorf("iso_date: unexpected %T", v)
	},
	EncodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case time.Time:
			return x.UTC().Format(time.RFC3339Nano), nil
		case string:
			return x, nil
		}
		return nil, fmt.Errorf("iso_date: unexpected %T", v)
	},
}

var boolString = CodecFuncs{
	DecodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("bool_string: %w", err)
			}
			return b, nil
		}
		return nil, fmt.Errorf("bool_string: unexpected %T", v)
	},
	EncodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case bool:
			return strconv.FormatBool(x), nil
		case string:
			return x, nil
		}
		return nil, fmt.Errorf("bool_string: unexpected %T", v)
	},
}

var numberString = CodecFuncs{
	DecodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("number_string: %w", err)
			}
			return f, nil
		}
		return nil, fmt.Errorf("number_string: unexpected %T", v)
	},
	EncodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case string:
			return x, nil
		}
		return nil, fmt.Errorf("number_string: unexpected %T", v)
	},
}

var csvList = CodecFuncs{
	DecodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case []any:
			return x, nil
		case string:
			if x == "" {
				return []any{}, nil
			}
			parts := strings.Split(x, ",")
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			return out, nil
		}
		return nil, fmt.Errorf("csv: unexpected %T", v)
	},
	EncodeFunc: func(v any) (any, error) {
		switch x := v.(type) {
		case string:
			return x, nil
		case []string:
			return strings.Join(x, ","), nil
		case []any:
			parts := make([]string, len(x))
			for i, p := range x {
				s, ok := p.(string)
				if !ok {
					return nil, fmt.Errorf("csv: element %d is %T", i, p)
				}
				parts[i] = s
			}
			return strings.Join(parts, ","), nil
		}
		return nil, fmt.Errorf("csv: unexpected %T", v)
	},
}
