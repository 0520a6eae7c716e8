package onnxpad_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/born-ml/onnxpad/onnxpad"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valueInfo(name string, dims ...int64) onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{}
	for _, d := range dims {
		shape.Dims = append(shape.Dims, onnx.DimensionProto{DimValue: d})
	}
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: onnx.TensorProtoFloat, Shape: shape}},
	}
}

func int64Raw(name string, values ...int64) onnx.TensorProto {
	var raw []byte
	for _, v := range values {
		raw = binary.LittleEndian.AppendUint64(raw, uint64(v)) //nolint:gosec // test data
	}
	return onnx.TensorProto{Name: name, DataType: onnx.TensorProtoInt64, Dims: []int64{int64(len(values))}, RawData: raw}
}

// depthModel mimics the decoder stage of a depth estimation network:
// conv -> Pad (+5 channels) -> relu.
func depthModel() *onnx.ModelProto {
	return &onnx.ModelProto{
		IRVersion:    6,
		ProducerName: "pytorch",
		OpsetImport:  []onnx.OperatorSetID{{Version: 11}},
		MetadataProps: []onnx.StringStringEntry{
			{Key: "source", Value: "midas"},
		},
		Graph: &onnx.GraphProto{
			Name: "torch-jit-export",
			Nodes: []onnx.NodeProto{
				{Name: "Conv_0", OpType: "Conv", Inputs: []string{"input", "w"}, Outputs: []string{"c"},
					Attributes: []onnx.AttributeProto{{Name: "kernel_shape", Type: onnx.AttributeProtoInts, Ints: []int64{1, 1}}}},
				{Name: "Pad_1", OpType: "Pad", Inputs: []string{"c", "pads"}, Outputs: []string{"p"},
					Attributes: []onnx.AttributeProto{{Name: "mode", Type: onnx.AttributeProtoString, S: []byte("constant")}}},
				{Name: "Relu_2", OpType: "Relu", Inputs: []string{"p"}, Outputs: []string{"output"}},
			},
			Initializers: []onnx.TensorProto{
				{Name: "w", DataType: onnx.TensorProtoFloat, Dims: []int64{3, 3, 1, 1}, FloatData: make([]float32, 9)},
				int64Raw("pads", 0, 0, 0, 0, 0, 5, 0, 0),
			},
			Inputs:    []onnx.ValueInfoProto{valueInfo("input", 1, 3, 32, 32)},
			Outputs:   []onnx.ValueInfoProto{valueInfo("output", 1, 8, 32, 32)},
			ValueInfo: []onnx.ValueInfoProto{valueInfo("c", 1, 3, 32, 32), valueInfo("p", 1, 8, 32, 32)},
		},
	}
}

func writeModel(t *testing.T, model *onnx.ModelProto) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, onnx.WriteFile(path, model))
	return path
}

func quiet() onnxpad.Options {
	logger, _ := test.NewNullLogger()
	return onnxpad.Options{Logger: logger}
}

func TestConvertFile(t *testing.T) {
	src := writeModel(t, depthModel())

	report, err := onnxpad.ConvertFile(src, "", quiet())
	require.NoError(t, err)

	dst := filepath.Join(filepath.Dir(src), "model_barracuda.onnx")
	assert.Equal(t, src, report.Source)
	assert.Equal(t, dst, report.Destination)
	assert.Equal(t, 1, report.Stats.Total())
	assert.Equal(t, 1, report.OpsBefore["Pad"])
	assert.Equal(t, 0, report.OpsAfter["Pad"])
	assert.Equal(t, 1, report.OpsAfter["ConstantOfShape"])

	info, err := onnxpad.GetModelInfo(dst)
	require.NoError(t, err)
	assert.Equal(t, 4, info.NodeCount)
	assert.Equal(t, 3, info.WeightCount)
	assert.Equal(t, int64(11), info.OpsetVersion)
	assert.Equal(t, "pytorch", info.ProducerName)
	assert.Zero(t, info.OpCounts["Pad"])
	assert.Equal(t, 1, info.OpCounts["Concat"])
}

func TestConvertFileKeepsUntouchedRecords(t *testing.T) {
	src := writeModel(t, depthModel())
	before, err := onnxpad.Load(src)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "out.onnx")
	_, err = onnxpad.ConvertFile(src, dst, quiet())
	require.NoError(t, err)

	after, err := onnxpad.Load(dst)
	require.NoError(t, err)

	assert.Equal(t, before.Graph.Nodes[0].Raw, after.Graph.Nodes[0].Raw)
	assert.Equal(t, before.Graph.Nodes[2].Raw, after.Graph.Nodes[3].Raw)
	for i := range before.Graph.Initializers {
		assert.Equal(t, before.Graph.Initializers[i].Raw, after.Graph.Initializers[i].Raw)
	}
	assert.Equal(t, before.MetadataProps, after.MetadataProps)
	assert.Equal(t, before.OpsetImport, after.OpsetImport)
	assert.Equal(t, before.Graph.ValueInfo, after.Graph.ValueInfo)
}

func TestConvertFileWritesNothingOnError(t *testing.T) {
	model := depthModel()
	model.Graph.ValueInfo = nil
	src := writeModel(t, model)
	dst := filepath.Join(filepath.Dir(src), "out.onnx")

	_, err := onnxpad.ConvertFile(src, dst, quiet())
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxpad.ErrMissingShapeInfo))
	assert.Contains(t, err.Error(), "Pad_1")

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestConvertFileMissingSource(t *testing.T) {
	_, err := onnxpad.ConvertFile(filepath.Join(t.TempDir(), "none.onnx"), "", quiet())
	assert.Error(t, err)
}

func TestConvertStrict(t *testing.T) {
	model := depthModel()
	model.Graph.Initializers[1] = int64Raw("pads", 0, 0, 1, 1, 0, 5, 1, 1)

	opts := quiet()
	opts.Strict = true
	_, err := onnxpad.Convert(model, opts)
	assert.True(t, errors.Is(err, onnxpad.ErrUnsupportedPadding))
	assert.Equal(t, "Pad", model.Graph.Nodes[1].OpType)
}

func TestConvertCheckOps(t *testing.T) {
	model := depthModel()
	model.Graph.Nodes[2].OpType = "Erf"

	opts := quiet()
	_, err := onnxpad.Convert(model, opts)
	require.NoError(t, err)

	model = depthModel()
	model.Graph.Nodes[2].OpType = "Erf"
	opts.CheckOps = true
	_, err = onnxpad.Convert(model, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, onnxpad.ErrStructural))

	var se *onnxpad.StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Relu_2", se.Node)
}

type rejectAll struct{ calls int }

func (r *rejectAll) Validate(*onnx.GraphProto) error {
	r.calls++
	return errors.New("rejected")
}

func TestConvertCustomValidator(t *testing.T) {
	v := &rejectAll{}
	opts := quiet()
	opts.Validator = v

	_, err := onnxpad.Convert(depthModel(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate: rejected")
	assert.Equal(t, 1, v.calls)
}

func TestConvertMetrics(t *testing.T) {
	opts := quiet()
	opts.Metrics = onnxpad.NewMetrics(nil)

	_, err := onnxpad.Convert(depthModel(), opts)
	require.NoError(t, err)
}

func TestConvertNilGraph(t *testing.T) {
	_, err := onnxpad.Convert(&onnx.ModelProto{}, onnxpad.DefaultOptions())
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := onnxpad.DefaultOptions()
	assert.False(t, opts.Strict)
	assert.False(t, opts.CheckOps)
	assert.Equal(t, logrus.StandardLogger(), opts.Logger)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		src, suffix, want string
	}{
		{"model-f6b98070.onnx", "_barracuda", "model-f6b98070_barracuda.onnx"},
		{"dir/model.onnx", "_x", "dir/model_x.onnx"},
		{"model", "_barracuda", "model_barracuda.onnx"},
		{"a.b/model.pb", "_barracuda", "a.b/model_barracuda.pb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, onnxpad.OutputPath(tt.src, tt.suffix))
	}
}

func TestSupportedOps(t *testing.T) {
	ops := onnxpad.SupportedOps()
	assert.Contains(t, ops, "ConstantOfShape")
	assert.Contains(t, ops, "Concat")
	assert.IsIncreasing(t, ops)
}
