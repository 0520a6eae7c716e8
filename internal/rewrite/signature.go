package rewrite

import (
	"fmt"

	"github.com/born-ml/onnxpad/internal/onnx"
)

// ShapeSignature identifies a fill shape. Equal signatures always resolve to
// the same initializer name.
type ShapeSignature struct {
	Batch    int64
	Channels int64
	Height   int64
	Width    int64
}

// Dims returns the signature as a dims slice.
func (s ShapeSignature) Dims() []int64 {
	return []int64{s.Batch, s.Channels, s.Height, s.Width}
}

// Name returns the initializer name derived from the signature.
func (s ShapeSignature) Name() string {
	return fmt.Sprintf("shape_%dx%dx%dx%d", s.Batch, s.Channels, s.Height, s.Width)
}

func (s ShapeSignature) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", s.Batch, s.Channels, s.Height, s.Width)
}

// Tensor returns the INT64 shape operand of ConstantOfShape for s.
func (s ShapeSignature) Tensor() onnx.TensorProto {
	return onnx.NewInt64Tensor(s.Name(), []int64{4}, s.Dims())
}
