package rewrite

import (
	"encoding/binary"

	"github.com/born-ml/onnxpad/internal/onnx"
)

// tensorInfo builds a value info; a negative dim becomes a symbolic dim.
func tensorInfo(name string, elemType int32, dims ...int64) onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{}
	for _, d := range dims {
		if d < 0 {
			shape.Dims = append(shape.Dims, onnx.DimensionProto{DimParam: "N"})
			continue
		}
		shape.Dims = append(shape.Dims, onnx.DimensionProto{DimValue: d})
	}
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}

// rawInt64 builds an INT64 initializer stored in raw_data.
func rawInt64(name string, values ...int64) onnx.TensorProto {
	raw := make([]byte, 0, 8*len(values))
	for _, v := range values {
		raw = binary.LittleEndian.AppendUint64(raw, uint64(v)) //nolint:gosec // test data
	}
	return onnx.TensorProto{
		Name:     name,
		DataType: onnx.TensorProtoInt64,
		Dims:     []int64{int64(len(values))},
		RawData:  raw,
	}
}

func padNode(name, input, pads, output string) onnx.NodeProto {
	return onnx.NodeProto{
		Name:    name,
		OpType:  "Pad",
		Inputs:  []string{input, pads},
		Outputs: []string{output},
	}
}

// singlePad is the one-Pad graph: X(1,3,64,64) -> Pad P1 (+5 channels) -> Y.
func singlePad() *onnx.GraphProto {
	return &onnx.GraphProto{
		Name:         "single_pad",
		Nodes:        []onnx.NodeProto{padNode("P1", "X", "pads", "Y")},
		Initializers: []onnx.TensorProto{rawInt64("pads", 0, 0, 0, 0, 0, 5, 0, 0)},
		Inputs:       []onnx.ValueInfoProto{tensorInfo("X", onnx.TensorProtoFloat, 1, 3, 64, 64)},
		Outputs:      []onnx.ValueInfoProto{tensorInfo("Y", onnx.TensorProtoFloat, 1, 8, 64, 64)},
	}
}

// twoPads pads two branches by the same amount and adds them.
func twoPads() *onnx.GraphProto {
	return &onnx.GraphProto{
		Name: "two_pads",
		Nodes: []onnx.NodeProto{
			{Name: "conv_a", OpType: "Conv", Inputs: []string{"X", "W"}, Outputs: []string{"a"}},
			{Name: "conv_b", OpType: "Conv", Inputs: []string{"X", "W"}, Outputs: []string{"b"}},
			padNode("pad_a", "a", "pads", "pa"),
			padNode("pad_b", "b", "pads", "pb"),
			{Name: "add", OpType: "Add", Inputs: []string{"pa", "pb"}, Outputs: []string{"Y"}},
		},
		Initializers: []onnx.TensorProto{
			{Name: "W", DataType: onnx.TensorProtoFloat, Dims: []int64{3, 3, 1, 1}},
			rawInt64("pads", 0, 0, 0, 0, 0, 5, 0, 0),
		},
		Inputs:  []onnx.ValueInfoProto{tensorInfo("X", onnx.TensorProtoFloat, 1, 3, 64, 64)},
		Outputs: []onnx.ValueInfoProto{tensorInfo("Y", onnx.TensorProtoFloat, 1, 8, 64, 64)},
		ValueInfo: []onnx.ValueInfoProto{
			tensorInfo("a", onnx.TensorProtoFloat, 1, 3, 64, 64),
			tensorInfo("b", onnx.TensorProtoFloat, 1, 3, 64, 64),
		},
	}
}

func countOp(g *onnx.GraphProto, op string) int {
	n := 0
	for i := range g.Nodes {
		if g.Nodes[i].OpType == op {
			n++
		}
	}
	return n
}

func findNode(g *onnx.GraphProto, name string) *onnx.NodeProto {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i]
		}
	}
	return nil
}
