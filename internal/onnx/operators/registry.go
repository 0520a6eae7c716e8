package operators

import (
	"fmt"
	"slices"

	"github.com/born-ml/onnxpad/internal/onnx"
)

// Constraint inspects a node of a supported operator type and returns an
// error if the runtime still cannot execute it.
type Constraint func(node *onnx.NodeProto) error

// Registry maps ONNX operator types to the constraints of one runtime.
type Registry struct {
	name     string
	handlers map[string]Constraint
}

// NewRegistry creates an empty registry for the named runtime.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:     name,
		handlers: make(map[string]Constraint),
	}
}

// Name returns the runtime name.
func (r *Registry) Name() string {
	return r.name
}

// Register adds an operator. A nil constraint accepts every node.
func (r *Registry) Register(opType string, c Constraint) {
	r.handlers[opType] = c
}

// Get returns the constraint for an operator type.
func (r *Registry) Get(opType string) (Constraint, bool) {
	c, ok := r.handlers[opType]
	return c, ok
}

// Check reports whether the runtime can execute node.
func (r *Registry) Check(node *onnx.NodeProto) error {
	if !onnx.DefaultDomain(node.Domain) {
		return fmt.Errorf("%s: unsupported operator domain %q", r.name, node.Domain)
	}
	c, ok := r.handlers[node.OpType]
	if !ok {
		return fmt.Errorf("%s: unsupported operator: %s", r.name, node.OpType)
	}
	if c == nil {
		return nil
	}
	if err := c(node); err != nil {
		return fmt.Errorf("%s: %s: %w", r.name, node.OpType, err)
	}
	return nil
}

// SupportedOps returns the registered operator types in sorted order.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}
