package workerloop

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/three-db/threedb/internal/tensor"
)

// encodeStat packs one evaluator Stats value into the tensor its declared
// schema describes, the Go-side equivalent of
// original_source/threedb/evaluators/base_evaluator.py's to_tensor/
// default scalar/array packing client.py relies on before a push.
func encodeStat(schema tensor.Schema, value interface{}) (tensor.Tensor, error) {
	t := tensor.New(schema)
	switch schema.DType {
	case tensor.Bool:
		b, ok := value.(bool)
		if !ok {
			return tensor.Tensor{}, fmt.Errorf("workerloop: expected bool, got %T", value)
		}
		if b {
			t.Data[0] = 1
		}
		return t, nil
	case tensor.Float32:
		v, err := toFloat64(value)
		if err != nil {
			return tensor.Tensor{}, err
		}
		binary.LittleEndian.PutUint32(t.Data, math.Float32bits(float32(v)))
		return t, nil
	case tensor.Float64:
		v, err := toFloat64(value)
		if err != nil {
			return tensor.Tensor{}, err
		}
		binary.LittleEndian.PutUint64(t.Data, math.Float64bits(v))
		return t, nil
	case tensor.Int64:
		return encodeInt64s(t, value)
	default:
		return tensor.Tensor{}, fmt.Errorf("workerloop: unsupported stat dtype %q", schema.DType)
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("workerloop: expected a number, got %T", value)
	}
}

// encodeInt64s handles both a bare scalar and a []int64 slice, since
// classification's "prediction" stat is the only multi-element stat the
// reference evaluator produces.
func encodeInt64s(t tensor.Tensor, value interface{}) (tensor.Tensor, error) {
	switch v := value.(type) {
	case int64:
		binary.LittleEndian.PutUint64(t.Data, uint64(v))
		return t, nil
	case int:
		binary.LittleEndian.PutUint64(t.Data, uint64(v))
		return t, nil
	case []int64:
		n := t.Shape.Elements()
		for i := 0; i < n; i++ {
			var x int64
			if i < len(v) {
				x = v[i]
			}
			binary.LittleEndian.PutUint64(t.Data[i*8:], uint64(x))
		}
		return t, nil
	default:
		return tensor.Tensor{}, fmt.Errorf("workerloop: expected int64 or []int64, got %T", value)
	}
}
