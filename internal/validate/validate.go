// Package validate certifies that a rewritten ONNX graph is well-formed
// before it is saved.
package validate

import (
	"fmt"

	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/born-ml/onnxpad/internal/onnx/operators"
)

// Validator checks a graph after rewriting.
type Validator interface {
	Validate(g *onnx.GraphProto) error
}

// Checker is the structural Validator.
//
// It verifies that node names are unique, that every tensor has a single
// producer, and that every node input and graph output names an initializer,
// a graph input or the output of an earlier node. When Runtime is set, every
// node must also be supported by it.
type Checker struct {
	Runtime *operators.Registry
}

// Validate returns the first defect found, or nil.
func (c *Checker) Validate(g *onnx.GraphProto) error {
	if errs := c.Check(g); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Check returns every defect found, in graph order.
//
//nolint:gocognit // One pass over the graph per defect class.
func (c *Checker) Check(g *onnx.GraphProto) []*StructuralError {
	if g == nil {
		return []*StructuralError{{Kind: KindMissingGraph, Details: "model has no graph"}}
	}

	var errs []*StructuralError

	// available holds names defined before the current node.
	available := make(map[string]bool, len(g.Initializers)+len(g.Inputs))
	for i := range g.Initializers {
		name := g.Initializers[i].Name
		if available[name] {
			errs = append(errs, &StructuralError{
				Kind:    KindDuplicateConstant,
				Tensor:  name,
				Details: "initializer defined more than once",
			})
		}
		available[name] = true
	}
	// Graph inputs may repeat initializer names: they declare overridable defaults.
	for i := range g.Inputs {
		available[g.Inputs[i].Name] = true
	}

	// producer resolves forward references.
	producer := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			if out == "" {
				continue
			}
			if _, ok := producer[out]; !ok {
				producer[out] = i
			}
		}
	}

	names := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		node := &g.Nodes[i]
		label := nodeLabel(node, i)

		if node.Name != "" {
			if first, ok := names[node.Name]; ok {
				errs = append(errs, &StructuralError{
					Kind:    KindDuplicateNode,
					Node:    node.Name,
					Details: fmt.Sprintf("also used by node %d", first),
				})
			} else {
				names[node.Name] = i
			}
		}

		for _, in := range node.Inputs {
			if in == "" || available[in] {
				continue
			}
			if j, ok := producer[in]; ok && j >= i {
				errs = append(errs, &StructuralError{
					Kind:    KindForwardReference,
					Node:    label,
					Tensor:  in,
					Details: fmt.Sprintf("produced by later node %d", j),
				})
				continue
			}
			errs = append(errs, &StructuralError{
				Kind:    KindDanglingReference,
				Node:    label,
				Tensor:  in,
				Details: "no initializer, graph input or node produces it",
			})
		}

		for _, out := range node.Outputs {
			if out == "" {
				continue
			}
			if available[out] {
				errs = append(errs, &StructuralError{
					Kind:    KindDuplicateProducer,
					Node:    label,
					Tensor:  out,
					Details: "tensor is already defined",
				})
			}
			available[out] = true
		}

		if c.Runtime != nil {
			if err := c.Runtime.Check(node); err != nil {
				errs = append(errs, &StructuralError{
					Kind:    KindUnsupportedOp,
					Node:    label,
					Details: err.Error(),
				})
			}
		}
	}

	for i := range g.Outputs {
		name := g.Outputs[i].Name
		if !available[name] {
			errs = append(errs, &StructuralError{
				Kind:    KindUndefinedOutput,
				Tensor:  name,
				Details: "graph output is never produced",
			})
		}
	}
	return errs
}

// nodeLabel names a node in errors, falling back to its index.
func nodeLabel(node *onnx.NodeProto, i int) string {
	if node.Name != "" {
		return node.Name
	}
	return fmt.Sprintf("#%d (%s)", i, node.OpType)
}
