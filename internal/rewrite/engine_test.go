package rewrite

import (
	"testing"

	"github.com/born-ml/onnxpad/internal/graph"
	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/born-ml/onnxpad/internal/validate"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, proto *onnx.GraphProto, opts Options) *Stats {
	t.Helper()
	stats, err := Run(graph.New(proto), opts)
	require.NoError(t, err)
	return stats
}

func TestRunSinglePad(t *testing.T) {
	proto := singlePad()
	stats := run(t, proto, Options{})

	require.Len(t, proto.Nodes, 2)
	assert.Nil(t, findNode(proto, "P1"))

	fill := proto.Nodes[0]
	assert.Equal(t, "P1_ConstantOfShape", fill.Name)
	assert.Equal(t, "ConstantOfShape", fill.OpType)
	assert.Equal(t, []string{"shape_1x5x64x64"}, fill.Inputs)
	assert.Equal(t, []string{"P1_pad"}, fill.Outputs)
	assert.Empty(t, fill.Attributes, "float zero is the ConstantOfShape default")

	concat := proto.Nodes[1]
	assert.Equal(t, "P1_Concat", concat.Name)
	assert.Equal(t, "Concat", concat.OpType)
	assert.Equal(t, []string{"X", "P1_pad"}, concat.Inputs)
	assert.Equal(t, []string{"Y"}, concat.Outputs)
	assert.Equal(t, int64(1), onnx.GetAttrInt(&concat, "axis", -1))

	shape, err := graph.New(proto).FindInitializer("shape_1x5x64x64")
	require.NoError(t, err)
	values, err := shape.Int64Values()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 64, 64}, values)

	assert.Equal(t, map[string]int{"Pad": 1}, stats.Rewritten)
	assert.Equal(t, 1, stats.ConstantsCreated)
	assert.Equal(t, 1, stats.NodesBefore)
	assert.Equal(t, 2, stats.NodesAfter)

	assert.NoError(t, (&validate.Checker{}).Validate(proto))
}

func TestRunDeduplicatesShapeConstants(t *testing.T) {
	proto := twoPads()
	stats := run(t, proto, Options{})

	fills := 0
	for i := range proto.Nodes {
		if proto.Nodes[i].OpType == "ConstantOfShape" {
			fills++
			assert.Equal(t, []string{"shape_1x5x64x64"}, proto.Nodes[i].Inputs)
		}
	}
	assert.Equal(t, 2, fills)

	shapes := 0
	for i := range proto.Initializers {
		if proto.Initializers[i].Name == "shape_1x5x64x64" {
			shapes++
		}
	}
	assert.Equal(t, 1, shapes)
	assert.Len(t, proto.Initializers, 3)
	assert.Equal(t, 1, stats.ConstantsCreated)
	assert.Equal(t, 1, stats.ConstantsReused)
}

func TestRunCountDelta(t *testing.T) {
	proto := twoPads()
	before := len(proto.Nodes)
	stats := run(t, proto, Options{})

	assert.Equal(t, 0, countOp(proto, "Pad"))
	assert.Equal(t, 2, countOp(proto, "ConstantOfShape"))
	assert.Equal(t, 2, countOp(proto, "Concat"))
	assert.Equal(t, before+2, len(proto.Nodes))
	assert.Equal(t, 2, stats.Total())
}

func TestRunPreservesOrder(t *testing.T) {
	original := twoPads()
	proto := twoPads()
	run(t, proto, Options{})

	var kept []onnx.NodeProto
	for _, n := range proto.Nodes {
		if n.OpType != "ConstantOfShape" && n.OpType != "Concat" {
			kept = append(kept, n)
		}
	}
	var want []onnx.NodeProto
	for _, n := range original.Nodes {
		if n.OpType != "Pad" {
			want = append(want, n)
		}
	}
	assert.Equal(t, want, kept)

	// Each replacement sits where its Pad was.
	ops := make([]string, len(proto.Nodes))
	for i := range proto.Nodes {
		ops[i] = proto.Nodes[i].OpType
	}
	assert.Equal(t, []string{"Conv", "Conv", "ConstantOfShape", "Concat", "ConstantOfShape", "Concat", "Add"}, ops)
	assert.NoError(t, (&validate.Checker{}).Validate(proto))
}

func TestRunIdempotent(t *testing.T) {
	proto := singlePad()
	run(t, proto, Options{})
	once := singlePad()
	run(t, once, Options{})

	stats := run(t, proto, Options{})
	assert.Equal(t, once, proto)
	assert.Equal(t, 0, stats.Total())
	assert.Equal(t, 0, stats.ConstantsCreated)
}

func TestRunLeavesPadFreeGraphUntouched(t *testing.T) {
	proto := twoPads()
	proto.Nodes[2].OpType = "Relu"
	proto.Nodes[2].Inputs = proto.Nodes[2].Inputs[:1]
	proto.Nodes[3].OpType = "Relu"
	proto.Nodes[3].Inputs = proto.Nodes[3].Inputs[:1]

	want := twoPads()
	want.Nodes[2].OpType = "Relu"
	want.Nodes[2].Inputs = want.Nodes[2].Inputs[:1]
	want.Nodes[3].OpType = "Relu"
	want.Nodes[3].Inputs = want.Nodes[3].Inputs[:1]

	run(t, proto, Options{})
	assert.Equal(t, want, proto)
}

func TestRunSkipsOtherDomains(t *testing.T) {
	proto := singlePad()
	proto.Nodes[0].Domain = "com.example"
	stats := run(t, proto, Options{})

	assert.Equal(t, 0, stats.Total())
	assert.Equal(t, "Pad", proto.Nodes[0].OpType)
}

func TestRunFailuresLeaveGraphUntouched(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *onnx.GraphProto)
		err    error
	}{
		{
			name:   "missing value info",
			mutate: func(g *onnx.GraphProto) { g.ValueInfo = g.ValueInfo[:1] },
			err:    ErrMissingShapeInfo,
		},
		{
			name:   "rank 3 input",
			mutate: func(g *onnx.GraphProto) { g.ValueInfo[1] = tensorInfo("b", onnx.TensorProtoFloat, 1, 3, 64) },
			err:    ErrUnsupportedRank,
		},
		{
			name:   "pads not an initializer",
			mutate: func(g *onnx.GraphProto) { g.Nodes[3].Inputs[1] = "dynamic_pads" },
			err:    ErrMissingPadTensor,
		},
		{
			name:   "pads without second input",
			mutate: func(g *onnx.GraphProto) { g.Nodes[3].Inputs = g.Nodes[3].Inputs[:1] },
			err:    ErrMissingPadTensor,
		},
		{
			name: "short pads",
			mutate: func(g *onnx.GraphProto) {
				g.Initializers = append(g.Initializers, rawInt64("short", 0, 0, 0, 0))
				g.Nodes[3].Inputs[1] = "short"
			},
			err: ErrIndexOutOfRange,
		},
		{
			name: "constant value not an initializer",
			mutate: func(g *onnx.GraphProto) {
				g.Nodes[3].Inputs = append(g.Nodes[3].Inputs, "computed")
			},
			err: ErrMissingPadTensor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proto := twoPads()
			tt.mutate(proto)
			want := twoPads()
			tt.mutate(want)

			_, err := Run(graph.New(proto), Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
			assert.Contains(t, err.Error(), `"pad_b"`)
			assert.Equal(t, want, proto, "failed pass must not edit the graph")
		})
	}
}

func TestRunStrict(t *testing.T) {
	tests := []struct {
		name   string
		pads   []int64
		mutate func(g *onnx.GraphProto)
		ok     bool
	}{
		{name: "channel end only", pads: []int64{0, 0, 0, 0, 0, 5, 0, 0}, ok: true},
		{name: "symbolic batch", pads: []int64{0, 0, 0, 0, 0, 5, 0, 0}, ok: true, mutate: func(g *onnx.GraphProto) {
			g.Inputs[0] = tensorInfo("X", onnx.TensorProtoFloat, -1, 3, 64, 64)
		}},
		{name: "spatial padding", pads: []int64{0, 0, 1, 1, 0, 5, 1, 1}},
		{name: "leading channel", pads: []int64{0, 2, 0, 0, 0, 5, 0, 0}},
		{name: "negative channel", pads: []int64{0, 0, 0, 0, 0, -1, 0, 0}},
		{name: "rank 5 pads", pads: []int64{0, 0, 0, 0, 0, 0, 5, 0, 0, 0}},
		{name: "six pads", pads: []int64{0, 0, 0, 0, 0, 5}},
		{name: "odd pads", pads: []int64{0, 0, 0, 0, 0, 5, 0}},
		{name: "batch 2", pads: []int64{0, 0, 0, 0, 0, 5, 0, 0}, mutate: func(g *onnx.GraphProto) {
			g.Inputs[0] = tensorInfo("X", onnx.TensorProtoFloat, 2, 3, 64, 64)
		}},
		{name: "symbolic height", pads: []int64{0, 0, 0, 0, 0, 5, 0, 0}, mutate: func(g *onnx.GraphProto) {
			g.Inputs[0] = tensorInfo("X", onnx.TensorProtoFloat, 1, 3, -1, 64)
		}},
		{name: "reflect mode", pads: []int64{0, 0, 0, 0, 0, 5, 0, 0}, mutate: func(g *onnx.GraphProto) {
			g.Nodes[0].Attributes = []onnx.AttributeProto{{Name: "mode", Type: onnx.AttributeProtoString, S: []byte("reflect")}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proto := singlePad()
			proto.Initializers[0] = rawInt64("pads", tt.pads...)
			if tt.mutate != nil {
				tt.mutate(proto)
			}

			_, err := Run(graph.New(proto), Options{Strict: true})
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupportedPadding), "got %v", err)
			assert.Equal(t, 1, countOp(proto, "Pad"))
		})
	}
}

func TestRunNonStrictNarrowsToChannelEnd(t *testing.T) {
	proto := singlePad()
	proto.Initializers[0] = rawInt64("pads", 0, 0, 1, 1, 0, 5, 1, 1)
	run(t, proto, Options{})

	assert.Equal(t, []string{"shape_1x5x64x64"}, proto.Nodes[0].Inputs)
}

func TestRunReadsChannelEndAtPositionFive(t *testing.T) {
	for _, pads := range [][]int64{
		{0, 0, 0, 0, 9, 5},
		{0, 0, 0, 0, 9, 5, 7},
		{0, 0, 0, 0, 0, 5, 6, 0, 0, 0},
	} {
		proto := singlePad()
		proto.Initializers[0] = rawInt64("pads", pads...)
		run(t, proto, Options{})

		assert.Equal(t, []string{"shape_1x5x64x64"}, proto.Nodes[0].Inputs, "pads %v", pads)
	}
}

func TestRunFillValue(t *testing.T) {
	t.Run("constant_value input", func(t *testing.T) {
		proto := singlePad()
		value, err := onnx.NewScalar("cv", onnx.TensorProtoFloat, 1.5)
		require.NoError(t, err)
		proto.Initializers = append(proto.Initializers, value)
		proto.Nodes[0].Inputs = append(proto.Nodes[0].Inputs, "cv")
		run(t, proto, Options{})

		attr := onnx.GetAttr(&proto.Nodes[0], "value")
		require.NotNil(t, attr)
		require.NotNil(t, attr.T)
		assert.Equal(t, int32(onnx.TensorProtoFloat), attr.T.DataType)
		v, err := attr.T.ScalarValue()
		require.NoError(t, err)
		assert.InDelta(t, 1.5, v, 0)
	})

	t.Run("legacy value attribute", func(t *testing.T) {
		proto := singlePad()
		proto.Nodes[0].Attributes = []onnx.AttributeProto{{Name: "value", Type: onnx.AttributeProtoFloat, F: -2}}
		run(t, proto, Options{})

		attr := onnx.GetAttr(&proto.Nodes[0], "value")
		require.NotNil(t, attr)
		v, err := attr.T.ScalarValue()
		require.NoError(t, err)
		assert.InDelta(t, -2, v, 0)
	})

	t.Run("float16 input", func(t *testing.T) {
		proto := singlePad()
		proto.Inputs[0] = tensorInfo("X", onnx.TensorProtoFloat16, 1, 3, 64, 64)
		value, err := onnx.NewScalar("cv", onnx.TensorProtoFloat16, 0.5)
		require.NoError(t, err)
		proto.Initializers = append(proto.Initializers, value)
		proto.Nodes[0].Inputs = append(proto.Nodes[0].Inputs, "cv")
		run(t, proto, Options{})

		attr := onnx.GetAttr(&proto.Nodes[0], "value")
		require.NotNil(t, attr)
		assert.Equal(t, int32(onnx.TensorProtoFloat16), attr.T.DataType)
		assert.Equal(t, []byte{0x00, 0x38}, attr.T.RawData)
	})

	t.Run("int64 input with zero fill", func(t *testing.T) {
		proto := singlePad()
		proto.Inputs[0] = tensorInfo("X", onnx.TensorProtoInt64, 1, 3, 64, 64)
		run(t, proto, Options{})

		attr := onnx.GetAttr(&proto.Nodes[0], "value")
		require.NotNil(t, attr, "non-float inputs need an explicit fill type")
		assert.Equal(t, int32(onnx.TensorProtoInt64), attr.T.DataType)
	})

	t.Run("unencodable type", func(t *testing.T) {
		proto := singlePad()
		proto.Inputs[0] = tensorInfo("X", onnx.TensorProtoString, 1, 3, 64, 64)
		run(t, proto, Options{})
		assert.Nil(t, onnx.GetAttr(&proto.Nodes[0], "value"))

		strict := singlePad()
		strict.Inputs[0] = tensorInfo("X", onnx.TensorProtoString, 1, 3, 64, 64)
		_, err := Run(graph.New(strict), Options{Strict: true})
		assert.True(t, errors.Is(err, ErrUnsupportedPadding))
	})
}

func TestRunUnnamedPad(t *testing.T) {
	proto := singlePad()
	proto.Nodes[0].Name = ""
	run(t, proto, Options{})

	assert.Equal(t, "Y_ConstantOfShape", proto.Nodes[0].Name)
	assert.Equal(t, []string{"Y_pad"}, proto.Nodes[0].Outputs)
	assert.Equal(t, "Y_Concat", proto.Nodes[1].Name)
}

func TestRunAvoidsNameCollisions(t *testing.T) {
	proto := singlePad()
	proto.Initializers = append(proto.Initializers, onnx.TensorProto{Name: "P1_pad", DataType: onnx.TensorProtoFloat})
	proto.Nodes = append([]onnx.NodeProto{
		{Name: "P1_Concat", OpType: "Identity", Inputs: []string{"P1_pad"}, Outputs: []string{"unused"}},
	}, proto.Nodes...)
	run(t, proto, Options{})

	assert.Equal(t, []string{"P1_pad_1"}, proto.Nodes[1].Outputs)
	assert.Equal(t, "P1_Concat_1", proto.Nodes[2].Name)
	assert.Equal(t, []string{"X", "P1_pad_1"}, proto.Nodes[2].Inputs)
	assert.NoError(t, (&validate.Checker{}).Validate(proto))
}

func TestRunReusesExistingShapeConstant(t *testing.T) {
	proto := singlePad()
	sig := ShapeSignature{Batch: 1, Channels: 5, Height: 64, Width: 64}
	proto.Initializers = append(proto.Initializers, sig.Tensor())
	stats := run(t, proto, Options{})

	assert.Len(t, proto.Initializers, 2)
	assert.Equal(t, 0, stats.ConstantsCreated)
	assert.Equal(t, 1, stats.ConstantsReused)
}

func TestRunShapeNameProducedByNode(t *testing.T) {
	proto := singlePad()
	proto.Nodes = append([]onnx.NodeProto{
		{Name: "id", OpType: "Identity", Inputs: []string{"X"}, Outputs: []string{"shape_1x5x64x64"}},
	}, proto.Nodes...)
	stats := run(t, proto, Options{})

	fill := findNode(proto, "P1_ConstantOfShape")
	require.NotNil(t, fill)
	assert.Equal(t, []string{"shape_1x5x64x64_1"}, fill.Inputs)
	assert.Equal(t, 1, stats.ConstantsCreated)
	assert.NoError(t, (&validate.Checker{}).Validate(proto))
}

type renameRule struct{}

func (renameRule) Match(_ *Context, node *onnx.NodeProto) (Rewrite, error) {
	return renameRewrite{node: *node}, nil
}

type renameRewrite struct {
	node onnx.NodeProto
}

func (r renameRewrite) Replacement(_ *Context) ([]onnx.NodeProto, error) {
	n := r.node
	n.OpType = "Identity"
	n.Raw = nil
	return []onnx.NodeProto{n}, nil
}

func (r renameRewrite) Describe() logrus.Fields {
	return logrus.Fields{"node": r.node.Name}
}

func TestRunCustomRule(t *testing.T) {
	rules := NewRegistry()
	rules.Register("Dropout", renameRule{})
	assert.Equal(t, []string{"Dropout", "Pad"}, rules.OpTypes())

	proto := singlePad()
	proto.Nodes = append(proto.Nodes, onnx.NodeProto{Name: "drop", OpType: "Dropout", Inputs: []string{"Y"}, Outputs: []string{"Z"}})
	stats := run(t, proto, Options{Rules: rules})

	assert.Equal(t, map[string]int{"Pad": 1, "Dropout": 1}, stats.Rewritten)
	assert.Equal(t, "Identity", proto.Nodes[2].OpType)
	assert.Equal(t, "drop", proto.Nodes[2].Name)
}

func TestRunLogs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	run(t, twoPads(), Options{Logger: logger})

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "rewrote node", entries[0].Message)
	assert.Equal(t, "pad_a", entries[0].Data["node"])
	assert.Equal(t, "(1,5,64,64)", entries[0].Data["shape"])

	last := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, "rewrite pass complete", last.Message)
	assert.Equal(t, 2, last.Data["rewritten"])
}

func TestRunModelWithoutGraph(t *testing.T) {
	_, err := RunModel(&onnx.ModelProto{}, Options{})
	assert.Error(t, err)
}
