package rewrite

import (
	"slices"

	"github.com/born-ml/onnxpad/internal/graph"
	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/sirupsen/logrus"
)

// Context is shared by the rules of one pass.
type Context struct {
	Graph  *graph.Graph
	Cache  *ConstantCache
	Strict bool
	Log    logrus.FieldLogger
}

// Rule rewrites nodes of one operator type.
type Rule interface {
	// Match extracts what the replacement of node needs. It must not edit
	// the graph: a pass matches every node before it changes anything.
	Match(ctx *Context, node *onnx.NodeProto) (Rewrite, error)
}

// Rewrite is a matched node ready to be replaced.
type Rewrite interface {
	// Replacement returns the nodes that take the place of the matched node.
	// Constants are requested from ctx.Cache.
	Replacement(ctx *Context) ([]onnx.NodeProto, error)

	// Describe returns log fields for the rewrite.
	Describe() logrus.Fields
}

// Registry maps operator types of the default domain to rules.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry creates a registry holding the built-in rules.
func NewRegistry() *Registry {
	r := &Registry{
		rules: make(map[string]Rule),
	}
	r.Register(padOpType, padRule{})
	return r
}

// Register adds or replaces the rule for opType.
func (r *Registry) Register(opType string, rule Rule) {
	r.rules[opType] = rule
}

// Get returns the rule for an operator type.
func (r *Registry) Get(opType string) (Rule, bool) {
	rule, ok := r.rules[opType]
	return rule, ok
}

// lookup returns the rule that applies to node, if any.
func (r *Registry) lookup(node *onnx.NodeProto) (Rule, bool) {
	if !onnx.DefaultDomain(node.Domain) {
		return nil, false
	}
	return r.Get(node.OpType)
}

// OpTypes returns the operator types with a rule, sorted.
func (r *Registry) OpTypes() []string {
	ops := make([]string, 0, len(r.rules))
	for op := range r.rules {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}
