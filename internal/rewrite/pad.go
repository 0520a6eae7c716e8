package rewrite

import (
	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	padOpType   = "Pad"
	channelAxis = 1
)

// padRule replaces Pad with ConstantOfShape + Concat along the channel axis.
//
// Only the trailing channel amount is read. Other amounts and non-constant
// modes are ignored unless the pass is strict.
type padRule struct{}

// padRewrite is a matched Pad node.
type padRewrite struct {
	node   string
	base   string
	input  string
	output string
	sig    ShapeSignature
	value  *onnx.TensorProto // ConstantOfShape fill value, nil for float zero
}

func (padRule) Match(ctx *Context, node *onnx.NodeProto) (Rewrite, error) {
	if len(node.Inputs) == 0 || node.Inputs[0] == "" || len(node.Outputs) == 0 {
		return nil, errors.Wrap(ErrMissingShapeInfo, "pad has no data input")
	}

	vi, err := ctx.Graph.FindValueInfo(node.Inputs[0])
	if err != nil {
		return nil, errors.Wrapf(ErrMissingShapeInfo, "input %q", node.Inputs[0])
	}
	dims := vi.Shape()
	if len(dims) < 4 {
		return nil, errors.Wrapf(ErrUnsupportedRank, "input %q has rank %d, need 4", node.Inputs[0], len(dims))
	}

	if len(node.Inputs) < 2 || node.Inputs[1] == "" {
		return nil, errors.Wrap(ErrMissingPadTensor, "pads is not an input")
	}
	padsTensor, err := ctx.Graph.FindInitializer(node.Inputs[1])
	if err != nil {
		return nil, errors.Wrapf(ErrMissingPadTensor, "pads %q is not an initializer", node.Inputs[1])
	}
	values, err := padsTensor.Int64Values()
	if err != nil {
		return nil, errors.Wrapf(ErrMissingPadTensor, "pads %q: %v", node.Inputs[1], err)
	}
	layout, err := DecodePads(values, len(dims))
	if err != nil {
		return nil, err
	}

	if ctx.Strict {
		if err := checkExpressible(node, dims, layout); err != nil {
			return nil, err
		}
	}

	value, err := fillValue(ctx, node, vi.ElemType())
	if err != nil {
		return nil, err
	}

	base := node.Name
	if base == "" {
		base = node.Outputs[0]
	}
	return &padRewrite{
		node:   node.Name,
		base:   base,
		input:  node.Inputs[0],
		output: node.Outputs[0],
		sig: ShapeSignature{
			Batch:    1,
			Channels: layout.ChannelEnd(),
			Height:   dims[2].DimValue,
			Width:    dims[3].DimValue,
		},
		value: value,
	}, nil
}

// checkExpressible rejects Pad nodes the concat rewrite would change.
func checkExpressible(node *onnx.NodeProto, dims []onnx.DimensionProto, layout PadLayout) error {
	if mode := onnx.GetAttrString(node, "mode", "constant"); mode != "constant" {
		return errors.Wrapf(ErrUnsupportedPadding, "mode %q", mode)
	}
	if len(dims) != 4 || layout.Rank() != 4 {
		return errors.Wrapf(ErrUnsupportedPadding, "rank %d with %d pad values", len(dims), len(layout.Values))
	}
	if !layout.OnlyTrailing(channelAxis) {
		return errors.Wrapf(ErrUnsupportedPadding, "pads %v %v touch more than the channel end", layout.Begins, layout.Ends)
	}
	if layout.ChannelEnd() < 0 {
		return errors.Wrapf(ErrUnsupportedPadding, "negative channel pad %d", layout.ChannelEnd())
	}
	if dims[0].Known() && dims[0].DimValue != 1 {
		return errors.Wrapf(ErrUnsupportedPadding, "batch %d, fill shape assumes 1", dims[0].DimValue)
	}
	if !dims[2].Known() || !dims[3].Known() {
		return errors.Wrap(ErrUnsupportedPadding, "spatial dims are not static")
	}
	return nil
}

// fillValue returns the ConstantOfShape value attribute tensor matching the
// Pad constant and the element type of its input. Float zero is the
// ConstantOfShape default and yields nil.
func fillValue(ctx *Context, node *onnx.NodeProto, elemType int32) (*onnx.TensorProto, error) {
	var v float64
	switch {
	case len(node.Inputs) > 2 && node.Inputs[2] != "":
		t, err := ctx.Graph.FindInitializer(node.Inputs[2])
		if err != nil {
			return nil, errors.Wrapf(ErrMissingPadTensor, "constant_value %q is not an initializer", node.Inputs[2])
		}
		if v, err = t.ScalarValue(); err != nil {
			return nil, errors.Wrapf(ErrMissingPadTensor, "constant_value %q: %v", node.Inputs[2], err)
		}
	case onnx.GetAttr(node, "value") != nil:
		v = float64(onnx.GetAttrFloat(node, "value", 0))
	}

	if elemType == onnx.TensorProtoUndefined {
		elemType = onnx.TensorProtoFloat
	}
	if elemType == onnx.TensorProtoFloat && v == 0 {
		return nil, nil
	}
	t, err := onnx.NewScalar("", elemType, v)
	if err != nil {
		if ctx.Strict {
			return nil, errors.Wrap(ErrUnsupportedPadding, err.Error())
		}
		ctx.Log.WithField("node", node.Name).Warnf("fill value not encodable, using float zero: %v", err)
		return nil, nil
	}
	return &t, nil
}

func (r *padRewrite) Replacement(ctx *Context) ([]onnx.NodeProto, error) {
	shape, err := ctx.Cache.Get(r.sig)
	if err != nil {
		return nil, err
	}

	g := ctx.Graph
	padded := g.UniqueName(r.base + "_pad")
	fill := onnx.NodeProto{
		Name:    g.UniqueName(r.base + "_ConstantOfShape"),
		OpType:  "ConstantOfShape",
		Inputs:  []string{shape},
		Outputs: []string{padded},
	}
	if r.value != nil {
		fill.Attributes = []onnx.AttributeProto{onnx.TensorAttr("value", *r.value)}
	}
	concat := onnx.NodeProto{
		Name:       g.UniqueName(r.base + "_Concat"),
		OpType:     "Concat",
		Inputs:     []string{r.input, padded},
		Outputs:    []string{r.output},
		Attributes: []onnx.AttributeProto{onnx.IntAttr("axis", channelAxis)},
	}
	return []onnx.NodeProto{fill, concat}, nil
}

func (r *padRewrite) Describe() logrus.Fields {
	return logrus.Fields{
		"node":  r.node,
		"op":    padOpType,
		"shape": r.sig.String(),
	}
}
