package rewrite

import (
	"slices"

	"github.com/born-ml/onnxpad/internal/graph"
	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/pkg/errors"
)

// ConstantCache hands out shape constants, adding at most one initializer
// per distinct ShapeSignature.
type ConstantCache struct {
	graph   *graph.Graph
	names   map[ShapeSignature]string
	created int
	reused  int
}

// NewConstantCache creates a cache that adds constants to g.
func NewConstantCache(g *graph.Graph) *ConstantCache {
	return &ConstantCache{
		graph: g,
		names: make(map[ShapeSignature]string),
	}
}

// Get returns the name of the shape constant for sig, creating it on first use.
// An initializer that already carries the derived name is reused when it
// holds the same shape; if the name is taken by anything else the new
// constant gets a numeric suffix.
func (c *ConstantCache) Get(sig ShapeSignature) (string, error) {
	if name, ok := c.names[sig]; ok {
		c.reused++
		return name, nil
	}

	name := sig.Name()
	if t, err := c.graph.FindInitializer(name); err == nil && holdsShape(t, sig) {
		c.names[sig] = name
		c.reused++
		return name, nil
	}

	tensor := sig.Tensor()
	tensor.Name = c.graph.UniqueName(name)
	name = tensor.Name
	if err := c.graph.AddInitializer(tensor); err != nil {
		return "", errors.Wrapf(err, "constant cache: add %s", name)
	}
	c.names[sig] = name
	c.created++
	return name, nil
}

// holdsShape reports whether t is the INT64 [4] shape tensor of sig.
func holdsShape(t *onnx.TensorProto, sig ShapeSignature) bool {
	if t.DataType != onnx.TensorProtoInt64 || !slices.Equal(t.Dims, []int64{4}) {
		return false
	}
	values, err := t.Int64Values()
	return err == nil && slices.Equal(values, sig.Dims())
}

// Created returns the number of initializers the cache added.
func (c *ConstantCache) Created() int { return c.created }

// Reused returns the number of requests served by an existing initializer.
func (c *ConstantCache) Reused() int { return c.reused }
