package zone

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// PointForm tags the representation a raw point arrived in.
type PointForm uint8

const (
	FormUnknown PointForm = iota
	FormPair              // [x, y]
	FormRecord            // {"x": .., "y": ..}
)

// RawPoint is a zone vertex as supplied by a client or a zone file, before
// integer coercion. X and Y hold whatever scalar the decoder produced.
type RawPoint struct {
	Form PointForm
	X, Y any
}

// Pair builds a RawPoint in the [x, y] form.
func Pair(x, y any) RawPoint { return RawPoint{Form: FormPair, X: x, Y: y} }

// Record builds a RawPoint in the {x, y} form.
func Record(x, y any) RawPoint { return RawPoint{Form: FormRecord, X: x, Y: y} }

// Normalize coerces the point into the canonical integer record.
func (r RawPoint) Normalize() (geometry.Point, error) {
	if r.Form != FormPair && r.Form != FormRecord {
		return geometry.Point{}, fmt.Errorf("point is neither [x, y] nor {x, y}")
	}
	x, err := coerceInt(r.X)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("x: %w", err)
	}
	y, err := coerceInt(r.Y)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("y: %w", err)
	}
	return geometry.Point{X: x, Y: y}, nil
}

// NormalizePoints keeps every point that coerces and counts the ones that do not.
func NormalizePoints(raw []RawPoint) ([]geometry.Point, int) {
	out := make([]geometry.Point, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		p, err := r.Normalize()
		if err != nil {
			dropped++
			continue
		}
		out = append(out, p)
	}
	return out, dropped
}

// coerceInt truncates numbers toward zero and parses base-10 strings.
// Booleans, nulls and composite values are rejected.
func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, fmt.Errorf("%d overflows int", n)
		}
		return int(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported coordinate type %T", v)
	}
}

func floatToInt(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%v is out of range", f)
	}
	return int(f), nil
}

// RawPointFromJSON reads one point from a parsed JSON value.
func RawPointFromJSON(r gjson.Result) RawPoint {
	switch {
	case r.IsArray():
		arr := r.Array()
		if len(arr) < 2 {
			return RawPoint{}
		}
		return Pair(jsonScalar(arr[0]), jsonScalar(arr[1]))
	case r.IsObject():
		x, y := r.Get("x"), r.Get("y")
		if !x.Exists() || !y.Exists() {
			return RawPoint{}
		}
		return Record(jsonScalar(x), jsonScalar(y))
	default:
		return RawPoint{}
	}
}

func jsonScalar(r gjson.Result) any {
	switch r.Type {
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.String:
		return r.Str
	default:
		return nil
	}
}

// RawPointsFromJSON reads a JSON array of points. Anything other than an
// array is ErrNotArray.
func RawPointsFromJSON(r gjson.Result) ([]RawPoint, error) {
	if !r.IsArray() {
		return nil, ErrNotArray
	}
	var out []RawPoint
	r.ForEach(func(_, value gjson.Result) bool {
		out = append(out, RawPointFromJSON(value))
		return true
	})
	return out, nil
}

// UnmarshalJSON accepts either point form. Shapes it does not recognise decode
// to FormUnknown and are dropped during normalization.
func (r *RawPoint) UnmarshalJSON(b []byte) error {
	*r = RawPointFromJSON(gjson.ParseBytes(b))
	return nil
}

// MarshalJSON always writes the canonical record form when the point is valid.
func (r RawPoint) MarshalJSON() ([]byte, error) {
	p, err := r.Normalize()
	if err != nil {
		return []byte("null"), nil
	}
	return json.Marshal(p)
}

// UnmarshalYAML accepts `[x, y]` sequences and `{x: .., y: ..}` mappings.
func (r *RawPoint) UnmarshalYAML(node *yaml.Node) error {
	*r = RawPoint{}
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) < 2 {
			return nil
		}
		*r = Pair(yamlScalar(node.Content[0]), yamlScalar(node.Content[1]))
	case yaml.MappingNode:
		var x, y *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			switch node.Content[i].Value {
			case "x":
				x = node.Content[i+1]
			case "y":
				y = node.Content[i+1]
			}
		}
		if x == nil || y == nil {
			return nil
		}
		*r = Record(yamlScalar(x), yamlScalar(y))
	}
	return nil
}

func yamlScalar(n *yaml.Node) any {
	if n.Kind != yaml.ScalarNode {
		return nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil
	}
	return v
}
