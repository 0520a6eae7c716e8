package operators

import (
	"errors"

	"github.com/born-ml/onnxpad/internal/onnx"
)

// barracudaOps lists the operators the Barracuda importer accepts without
// further constraints.
var barracudaOps = []string{
	// Arithmetic
	"Add", "Sub", "Mul", "Div", "Pow", "Min", "Max", "Mean", "Sum",
	"Abs", "Neg", "Sqrt", "Exp", "Log", "Reciprocal", "Floor", "Ceil", "Clip",
	// Activations
	"Relu", "LeakyRelu", "PRelu", "Elu", "Selu", "Sigmoid", "Tanh",
	"Softmax", "LogSoftmax", "HardSigmoid", "Softplus",
	// Convolution and pooling
	"Conv", "ConvTranspose", "MaxPool", "AveragePool",
	"GlobalMaxPool", "GlobalAveragePool",
	// Normalization
	"BatchNormalization", "InstanceNormalization", "LRN",
	// Matrix
	"Gemm", "MatMul",
	// Shape
	"Flatten", "Reshape", "Transpose", "Squeeze", "Unsqueeze", "Concat",
	"Slice", "Split", "Gather", "Shape", "Expand", "Tile",
	"Upsample", "Resize",
	// Reduction
	"ReduceMean", "ReduceSum", "ReduceMax", "ReduceMin", "ReduceProd",
	// Other
	"Identity", "Dropout", "Constant", "ConstantOfShape", "Cast",
}

// errChannelPad is returned for Pad nodes that touch the batch or channel axes.
var errChannelPad = errors.New("only spatial padding is supported")

// Barracuda returns the operator table of the Unity Barracuda runtime.
func Barracuda() *Registry {
	r := NewRegistry("barracuda")
	for _, op := range barracudaOps {
		r.Register(op, nil)
	}
	r.Register("Pad", spatialPadOnly)
	return r
}

// spatialPadOnly accepts Pad nodes whose pads attribute leaves axes 0 and 1
// untouched. Pads given as an input tensor cannot be checked without the
// graph and are rejected.
func spatialPadOnly(node *onnx.NodeProto) error {
	if len(node.Inputs) > 1 && node.Inputs[1] != "" {
		return errChannelPad
	}
	attr := onnx.GetAttr(node, "pads")
	if attr == nil {
		return nil
	}
	rank := len(attr.Ints) / 2
	for axis := 0; axis < rank && axis < 2; axis++ {
		if attr.Ints[axis] != 0 || attr.Ints[rank+axis] != 0 {
			return errChannelPad
		}
	}
	return nil
}
