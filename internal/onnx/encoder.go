package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
)

// WriteFile encodes model and writes it to path.
func WriteFile(path string, model *ModelProto) error {
	data, err := Encode(model)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: model files are not secrets.
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Encode serializes model to the protobuf wire format.
//
// Fields are written in field-number order, the order protobuf serializers
// use. Messages carrying Raw bytes and unknown fields are copied verbatim,
// so a model that was parsed and not edited encodes to its original bytes.
func Encode(model *ModelProto) ([]byte, error) {
	if model == nil {
		return nil, errors.New("nil model")
	}
	return encodeModel(model), nil
}

// encoder collects encoded fields of one message.
type encoder struct {
	fields []RawField
}

func (e *encoder) add(fieldNum int, data []byte) {
	e.fields = append(e.fields, RawField{Number: fieldNum, Bytes: data})
}

func appendTag(dst []byte, fieldNum, wireType int) []byte {
	return binary.AppendUvarint(dst, uint64(fieldNum)<<3|uint64(wireType)) //nolint:gosec // G115: field numbers are small.
}

func (e *encoder) writeVarint(fieldNum int, v int64) {
	b := appendTag(nil, fieldNum, wireVarint)
	e.add(fieldNum, binary.AppendUvarint(b, uint64(v))) //nolint:gosec // G115: two's complement is the wire form of negative int64.
}

func (e *encoder) writeBytes(fieldNum int, data []byte) {
	b := appendTag(nil, fieldNum, wireBytes)
	b = binary.AppendUvarint(b, uint64(len(data)))
	e.add(fieldNum, append(b, data...))
}

func (e *encoder) writeString(fieldNum int, s string) {
	e.writeBytes(fieldNum, []byte(s))
}

// optString writes s unless it is empty.
func (e *encoder) optString(fieldNum int, s string) {
	if s != "" {
		e.writeString(fieldNum, s)
	}
}

// optVarint writes v unless it is zero.
func (e *encoder) optVarint(fieldNum int, v int64) {
	if v != 0 {
		e.writeVarint(fieldNum, v)
	}
}

func (e *encoder) writeFloat32(fieldNum int, f float32) {
	b := appendTag(nil, fieldNum, wire32Bit)
	e.add(fieldNum, binary.LittleEndian.AppendUint32(b, math.Float32bits(f)))
}

// raw appends already encoded fields.
func (e *encoder) raw(fields ...RawField) {
	e.fields = append(e.fields, fields...)
}

// bytesOut merges the collected fields in field-number order.
func (e *encoder) bytesOut() []byte {
	slices.SortStableFunc(e.fields, func(a, b RawField) int {
		return a.Number - b.Number
	})
	size := 0
	for _, f := range e.fields {
		size += len(f.Bytes)
	}
	out := make([]byte, 0, size)
	for _, f := range e.fields {
		out = append(out, f.Bytes...)
	}
	return out
}

func encodeModel(m *ModelProto) []byte {
	e := &encoder{}
	e.optVarint(1, m.IRVersion)
	e.optString(2, m.ProducerName)
	e.optString(3, m.ProducerVersion)
	e.optString(4, m.Domain)
	e.optVarint(5, m.ModelVersion)
	e.optString(6, m.DocString)
	if m.Graph != nil {
		e.writeBytes(7, encodeGraph(m.Graph))
	}
	for i := range m.OpsetImport {
		e.writeBytes(8, encodeOperatorSetID(&m.OpsetImport[i]))
	}
	for i := range m.MetadataProps {
		e.writeBytes(14, encodeStringStringEntry(&m.MetadataProps[i]))
	}
	e.raw(m.Unknown...)
	return e.bytesOut()
}

func encodeGraph(g *GraphProto) []byte {
	e := &encoder{}
	for i := range g.Nodes {
		e.writeBytes(1, EncodeNode(&g.Nodes[i]))
	}
	e.optString(2, g.Name)
	for i := range g.Initializers {
		e.writeBytes(5, EncodeTensor(&g.Initializers[i]))
	}
	e.optString(10, g.DocString)
	for i := range g.Inputs {
		e.writeBytes(11, encodeValueInfo(&g.Inputs[i]))
	}
	for i := range g.Outputs {
		e.writeBytes(12, encodeValueInfo(&g.Outputs[i]))
	}
	for i := range g.ValueInfo {
		e.writeBytes(13, encodeValueInfo(&g.ValueInfo[i]))
	}
	e.raw(g.Unknown...)
	return e.bytesOut()
}

// EncodeNode returns the wire form of a node, reusing Raw when present.
func EncodeNode(n *NodeProto) []byte {
	if n.Raw != nil {
		return n.Raw
	}
	e := &encoder{}
	for _, in := range n.Inputs {
		e.writeString(1, in)
	}
	for _, out := range n.Outputs {
		e.writeString(2, out)
	}
	e.optString(3, n.Name)
	e.optString(4, n.OpType)
	for i := range n.Attributes {
		e.writeBytes(5, encodeAttribute(&n.Attributes[i]))
	}
	e.optString(6, n.DocString)
	e.optString(7, n.Domain)
	return e.bytesOut()
}

func encodeAttribute(a *AttributeProto) []byte {
	e := &encoder{}
	e.writeString(1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		e.writeFloat32(2, a.F)
	case AttributeProtoInt:
		e.writeVarint(3, a.I)
	case AttributeProtoString:
		e.writeBytes(4, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			e.writeBytes(5, EncodeTensor(a.T))
		}
	case AttributeProtoFloats:
		for _, f := range a.Floats {
			e.writeFloat32(7, f)
		}
	case AttributeProtoInts:
		for _, v := range a.Ints {
			e.writeVarint(8, v)
		}
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			e.writeBytes(9, s)
		}
	}
	e.optString(13, a.DocString)
	e.writeVarint(20, int64(a.Type))
	return e.bytesOut()
}

// EncodeTensor returns the wire form of a tensor, reusing Raw when present.
func EncodeTensor(t *TensorProto) []byte {
	if t.Raw != nil {
		return t.Raw
	}
	e := &encoder{}
	for _, d := range t.Dims {
		e.writeVarint(1, d)
	}
	e.writeVarint(2, int64(t.DataType))
	for _, f := range t.FloatData {
		e.writeFloat32(4, f)
	}
	for _, v := range t.Int32Data {
		e.writeVarint(5, int64(v))
	}
	for _, v := range t.Int64Data {
		e.writeVarint(7, v)
	}
	e.optString(8, t.Name)
	if t.RawData != nil {
		e.writeBytes(9, t.RawData)
	}
	e.optString(12, t.DocString)
	return e.bytesOut()
}

func encodeValueInfo(v *ValueInfoProto) []byte {
	if v.Raw != nil {
		return v.Raw
	}
	e := &encoder{}
	e.optString(1, v.Name)
	if v.Type != nil {
		e.writeBytes(2, encodeTypeProto(v.Type))
	}
	e.optString(3, v.DocString)
	return e.bytesOut()
}

func encodeTypeProto(t *TypeProto) []byte {
	e := &encoder{}
	if tt := t.TensorType; tt != nil {
		inner := &encoder{}
		inner.writeVarint(1, int64(tt.ElemType))
		if tt.Shape != nil {
			shape := &encoder{}
			for _, d := range tt.Shape.Dims {
				dim := &encoder{}
				switch {
				case d.DimParam != "":
					dim.writeString(2, d.DimParam)
				case d.DimValue != 0:
					dim.writeVarint(1, d.DimValue)
				}
				shape.writeBytes(1, dim.bytesOut())
			}
			inner.writeBytes(2, shape.bytesOut())
		}
		e.writeBytes(1, inner.bytesOut())
	}
	return e.bytesOut()
}

func encodeOperatorSetID(o *OperatorSetID) []byte {
	if o.Raw != nil {
		return o.Raw
	}
	e := &encoder{}
	e.optString(1, o.Domain)
	e.writeVarint(2, o.Version)
	return e.bytesOut()
}

func encodeStringStringEntry(s *StringStringEntry) []byte {
	if s.Raw != nil {
		return s.Raw
	}
	e := &encoder{}
	e.writeString(1, s.Key)
	e.writeString(2, s.Value)
	return e.bytesOut()
}
