package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// NumElements returns the element count implied by Dims.
// A tensor with no dims is a scalar.
func (t *TensorProto) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// ElemSize returns the byte width of one element of dataType, or 0 when the
// type has no fixed-width raw encoding.
func ElemSize(dataType int32) int {
	switch dataType {
	case TensorProtoUint8, TensorProtoInt8, TensorProtoBool:
		return 1
	case TensorProtoUint16, TensorProtoInt16, TensorProtoFloat16, TensorProtoBfloat16:
		return 2
	case TensorProtoFloat, TensorProtoInt32, TensorProtoUint32:
		return 4
	case TensorProtoDouble, TensorProtoInt64, TensorProtoUint64:
		return 8
	default:
		return 0
	}
}

// Int64Values returns the contents of an integer tensor as int64.
// INT64 and INT32 tensors are accepted, stored either in the typed
// fields or in raw_data.
func (t *TensorProto) Int64Values() ([]int64, error) {
	switch t.DataType {
	case TensorProtoInt64:
		if len(t.RawData) > 0 {
			if len(t.RawData)%8 != 0 {
				return nil, fmt.Errorf("tensor %s: raw_data length %d is not a multiple of 8", t.Name, len(t.RawData))
			}
			out := make([]int64, len(t.RawData)/8)
			for i := range out {
				out[i] = int64(binary.LittleEndian.Uint64(t.RawData[i*8:])) //nolint:gosec // G115: reinterpreting int64 bits.
			}
			return out, nil
		}
		return t.Int64Data, nil
	case TensorProtoInt32:
		if len(t.RawData) > 0 {
			if len(t.RawData)%4 != 0 {
				return nil, fmt.Errorf("tensor %s: raw_data length %d is not a multiple of 4", t.Name, len(t.RawData))
			}
			out := make([]int64, len(t.RawData)/4)
			for i := range out {
				out[i] = int64(int32(binary.LittleEndian.Uint32(t.RawData[i*4:]))) //nolint:gosec // G115: reinterpreting int32 bits.
			}
			return out, nil
		}
		out := make([]int64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			out[i] = int64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tensor %s: expected integer data, got type %d", t.Name, t.DataType)
	}
}

// ScalarValue returns the first element of t as float64.
//
//nolint:gocyclo,cyclop // One case per ONNX element type.
func (t *TensorProto) ScalarValue() (float64, error) {
	if len(t.RawData) > 0 {
		size := ElemSize(t.DataType)
		if size == 0 || len(t.RawData) < size {
			return 0, fmt.Errorf("tensor %s: cannot decode raw element of type %d", t.Name, t.DataType)
		}
		b := t.RawData
		switch t.DataType {
		case TensorProtoFloat:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
		case TensorProtoDouble:
			return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
		case TensorProtoFloat16:
			return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()), nil
		case TensorProtoBfloat16:
			return float64(math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16)), nil
		case TensorProtoInt8:
			return float64(int8(b[0])), nil
		case TensorProtoUint8, TensorProtoBool:
			return float64(b[0]), nil
		case TensorProtoInt16:
			return float64(int16(binary.LittleEndian.Uint16(b))), nil //nolint:gosec // G115: reinterpreting int16 bits.
		case TensorProtoUint16:
			return float64(binary.LittleEndian.Uint16(b)), nil
		case TensorProtoInt32:
			return float64(int32(binary.LittleEndian.Uint32(b))), nil //nolint:gosec // G115: reinterpreting int32 bits.
		case TensorProtoUint32:
			return float64(binary.LittleEndian.Uint32(b)), nil
		case TensorProtoInt64:
			return float64(int64(binary.LittleEndian.Uint64(b))), nil //nolint:gosec // G115: reinterpreting int64 bits.
		case TensorProtoUint64:
			return float64(binary.LittleEndian.Uint64(b)), nil
		}
	}

	// Typed fields. FLOAT16 and BFLOAT16 live in int32_data as raw bits.
	switch {
	case len(t.FloatData) > 0:
		return float64(t.FloatData[0]), nil
	case len(t.Int64Data) > 0:
		return float64(t.Int64Data[0]), nil
	case len(t.Int32Data) > 0:
		v := t.Int32Data[0]
		switch t.DataType {
		case TensorProtoFloat16:
			return float64(float16.Frombits(uint16(v)).Float32()), nil //nolint:gosec // G115: low 16 bits hold the value.
		case TensorProtoBfloat16:
			return float64(math.Float32frombits(uint32(v) << 16)), nil //nolint:gosec // G115: low 16 bits hold the value.
		}
		return float64(v), nil
	}
	return 0, fmt.Errorf("tensor %s: no data", t.Name)
}

// NewInt64Tensor builds an INT64 tensor stored in int64_data.
func NewInt64Tensor(name string, dims, values []int64) TensorProto {
	return TensorProto{
		Name:      name,
		DataType:  TensorProtoInt64,
		Dims:      append([]int64(nil), dims...),
		Int64Data: append([]int64(nil), values...),
	}
}

// NewScalar builds a one-element tensor of shape [1] holding v converted to
// dataType, stored in raw_data.
//
//nolint:gocyclo,cyclop // One case per ONNX element type.
func NewScalar(name string, dataType int32, v float64) (TensorProto, error) {
	var raw []byte
	switch dataType {
	case TensorProtoFloat:
		raw = binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v)))
	case TensorProtoDouble:
		raw = binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
	case TensorProtoFloat16:
		raw = binary.LittleEndian.AppendUint16(nil, float16.Fromfloat32(float32(v)).Bits())
	case TensorProtoBfloat16:
		raw = binary.LittleEndian.AppendUint16(nil, uint16(math.Float32bits(float32(v))>>16))
	case TensorProtoInt8:
		raw = []byte{byte(int8(v))}
	case TensorProtoUint8:
		raw = []byte{uint8(v)}
	case TensorProtoBool:
		if v != 0 {
			raw = []byte{1}
		} else {
			raw = []byte{0}
		}
	case TensorProtoInt16:
		raw = binary.LittleEndian.AppendUint16(nil, uint16(int16(v))) //nolint:gosec // G115: two's complement bits.
	case TensorProtoUint16:
		raw = binary.LittleEndian.AppendUint16(nil, uint16(v))
	case TensorProtoInt32:
		raw = binary.LittleEndian.AppendUint32(nil, uint32(int32(v))) //nolint:gosec // G115: two's complement bits.
	case TensorProtoUint32:
		raw = binary.LittleEndian.AppendUint32(nil, uint32(v))
	case TensorProtoInt64:
		raw = binary.LittleEndian.AppendUint64(nil, uint64(int64(v))) //nolint:gosec // G115: two's complement bits.
	case TensorProtoUint64:
		raw = binary.LittleEndian.AppendUint64(nil, uint64(v))
	default:
		return TensorProto{}, fmt.Errorf("unsupported scalar data type %d", dataType)
	}
	return TensorProto{
		Name:     name,
		DataType: dataType,
		Dims:     []int64{1},
		RawData:  raw,
	}, nil
}

// Shape returns the dims of a value info, or nil if it has no tensor shape.
func (v *ValueInfoProto) Shape() []DimensionProto {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil
	}
	return v.Type.TensorType.Shape.Dims
}

// ElemType returns the element type of a value info, or TensorProtoUndefined.
func (v *ValueInfoProto) ElemType() int32 {
	if v.Type == nil || v.Type.TensorType == nil {
		return TensorProtoUndefined
	}
	return v.Type.TensorType.ElemType
}
