// Package graph is the mutable view of an ONNX graph used by rewrites.
//
// A Graph wraps an onnx.GraphProto without copying it. Nodes keep their
// order, which approximates a topological order of the data dependencies;
// edits are plain sequence operations plus name bookkeeping, because nodes
// refer to tensors by name only.
package graph

import (
	"fmt"
	"slices"

	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/pkg/errors"
)

// Graph indexes an onnx.GraphProto for lookups and in-place edits.
type Graph struct {
	proto *onnx.GraphProto

	initializers map[string]int // name -> index into proto.Initializers
	valueInfo    map[string]*onnx.ValueInfoProto
	nodeNames    map[string]int // reference counts of non-empty node names
	tensorNames  map[string]int // reference counts of produced/declared tensor names
}

// New indexes g. Edits made through the Graph are applied to g.
func New(g *onnx.GraphProto) *Graph {
	gr := &Graph{
		proto:        g,
		initializers: make(map[string]int, len(g.Initializers)),
		valueInfo:    make(map[string]*onnx.ValueInfoProto, len(g.ValueInfo)+len(g.Inputs)+len(g.Outputs)),
		nodeNames:    make(map[string]int, len(g.Nodes)),
		tensorNames:  make(map[string]int),
	}

	for i := range g.Initializers {
		name := g.Initializers[i].Name
		if _, ok := gr.initializers[name]; !ok {
			gr.initializers[name] = i
		}
		gr.tensorNames[name]++
	}

	// value_info wins over graph inputs and outputs for the same name.
	for _, list := range [][]onnx.ValueInfoProto{g.ValueInfo, g.Inputs, g.Outputs} {
		for i := range list {
			if _, ok := gr.valueInfo[list[i].Name]; !ok {
				gr.valueInfo[list[i].Name] = &list[i]
			}
		}
	}
	for i := range g.Inputs {
		gr.tensorNames[g.Inputs[i].Name]++
	}

	for i := range g.Nodes {
		gr.track(&g.Nodes[i], 1)
	}
	return gr
}

// track adds delta to the name counts of node.
func (g *Graph) track(node *onnx.NodeProto, delta int) {
	if node.Name != "" {
		g.nodeNames[node.Name] += delta
		if g.nodeNames[node.Name] <= 0 {
			delete(g.nodeNames, node.Name)
		}
	}
	for _, out := range node.Outputs {
		if out == "" {
			continue
		}
		g.tensorNames[out] += delta
		if g.tensorNames[out] <= 0 {
			delete(g.tensorNames, out)
		}
	}
}

// Proto returns the underlying graph.
func (g *Graph) Proto() *onnx.GraphProto {
	return g.proto
}

// Nodes returns the live node sequence. The slice is invalidated by edits.
func (g *Graph) Nodes() []onnx.NodeProto {
	return g.proto.Nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.proto.Nodes)
}

// Node returns the node at index i. The pointer is invalidated by edits.
func (g *Graph) Node(i int) *onnx.NodeProto {
	return &g.proto.Nodes[i]
}

// FindInitializer returns the initializer called name.
func (g *Graph) FindInitializer(name string) (*onnx.TensorProto, error) {
	i, ok := g.initializers[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "initializer %q", name)
	}
	return &g.proto.Initializers[i], nil
}

// FindValueInfo returns the shape annotation of the tensor called name,
// looking at value_info first, then graph inputs and outputs.
func (g *Graph) FindValueInfo(name string) (*onnx.ValueInfoProto, error) {
	vi, ok := g.valueInfo[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "value info %q", name)
	}
	return vi, nil
}

// AddInitializer appends a constant. The name must not be used by another
// initializer, a graph input or a node output.
func (g *Graph) AddInitializer(t onnx.TensorProto) error {
	if _, ok := g.initializers[t.Name]; ok {
		return errors.Wrapf(ErrDuplicateName, "initializer %q", t.Name)
	}
	if g.HasTensor(t.Name) {
		return errors.Wrapf(ErrDuplicateName, "tensor %q", t.Name)
	}
	g.proto.Initializers = append(g.proto.Initializers, t)
	g.initializers[t.Name] = len(g.proto.Initializers) - 1
	g.tensorNames[t.Name]++
	return nil
}

// InsertNodes inserts nodes before index at. at may equal Len to append.
// The caller keeps the topological order: inserted nodes may only consume
// names available before at.
func (g *Graph) InsertNodes(at int, nodes ...onnx.NodeProto) error {
	if at < 0 || at > len(g.proto.Nodes) {
		return errors.Wrapf(ErrIndexOutOfRange, "insert at %d of %d", at, len(g.proto.Nodes))
	}
	g.proto.Nodes = slices.Insert(g.proto.Nodes, at, nodes...)
	for i := range nodes {
		g.track(&nodes[i], 1)
	}
	return nil
}

// RemoveNode deletes the node at index i.
func (g *Graph) RemoveNode(i int) error {
	if i < 0 || i >= len(g.proto.Nodes) {
		return errors.Wrapf(ErrIndexOutOfRange, "remove %d of %d", i, len(g.proto.Nodes))
	}
	g.track(&g.proto.Nodes[i], -1)
	g.proto.Nodes = slices.Delete(g.proto.Nodes, i, i+1)
	return nil
}

// ReplaceNode substitutes the node at index i with nodes, keeping their order.
func (g *Graph) ReplaceNode(i int, nodes ...onnx.NodeProto) error {
	if err := g.RemoveNode(i); err != nil {
		return err
	}
	return g.InsertNodes(i, nodes...)
}

// HasNode reports whether a node called name exists.
func (g *Graph) HasNode(name string) bool {
	return g.nodeNames[name] > 0
}

// HasTensor reports whether name is produced by a node or declared as an
// initializer or graph input.
func (g *Graph) HasTensor(name string) bool {
	return g.tensorNames[name] > 0
}

// UniqueName returns base if no node or tensor uses it, otherwise base
// followed by the first free numeric suffix.
func (g *Graph) UniqueName(base string) string {
	taken := func(name string) bool {
		return g.HasNode(name) || g.HasTensor(name)
	}
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if !taken(name) {
			return name
		}
	}
}
