// Package rewrite replaces operators the target runtime lacks with
// equivalent subgraphs.
//
// A pass runs in two phases. Every eligible node is matched first, without
// editing the graph, so any failure leaves the graph exactly as it was. The
// matched nodes are then spliced in place, each replacement taking the index
// of the node it replaces.
package rewrite

import (
	"io"
	"time"

	"github.com/born-ml/onnxpad/internal/graph"
	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options configures a rewrite pass.
type Options struct {
	// Strict rejects Pad nodes whose padding a channel concat cannot
	// reproduce instead of narrowing them to the channel end amount.
	Strict bool

	// Rules selects the rewrite rules. Nil uses NewRegistry.
	Rules *Registry

	// Logger receives per-node debug lines and a pass summary. Nil discards.
	Logger logrus.FieldLogger

	// Metrics is updated after each pass when set.
	Metrics *Metrics
}

// DefaultOptions returns options with the built-in rules and the standard logger.
func DefaultOptions() Options {
	return Options{
		Rules:  NewRegistry(),
		Logger: logrus.StandardLogger(),
	}
}

// Stats summarizes a pass.
type Stats struct {
	Rewritten        map[string]int // Rewritten nodes per op type
	ConstantsCreated int
	ConstantsReused  int
	NodesBefore      int
	NodesAfter       int
}

// Total returns the number of rewritten nodes.
func (s *Stats) Total() int {
	n := 0
	for _, c := range s.Rewritten {
		n += c
	}
	return n
}

type match struct {
	index  int
	opType string
	rw     Rewrite
}

// Run rewrites every node of g that has a rule.
func Run(g *graph.Graph, opts Options) (*Stats, error) {
	start := time.Now()
	if opts.Rules == nil {
		opts.Rules = NewRegistry()
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	ctx := &Context{
		Graph:  g,
		Cache:  NewConstantCache(g),
		Strict: opts.Strict,
		Log:    opts.Logger,
	}
	stats := &Stats{
		Rewritten:   make(map[string]int),
		NodesBefore: g.Len(),
	}

	matches, err := matchAll(ctx, opts.Rules)
	if err != nil {
		opts.Metrics.fail(err)
		return nil, err
	}

	// Each splice grows the sequence by len(replacement)-1.
	shift := 0
	for _, m := range matches {
		at := m.index + shift
		name := g.Node(at).Name

		repl, err := m.rw.Replacement(ctx)
		if err != nil {
			err = errors.Wrapf(err, "rewrite %s node %q (index %d)", m.opType, name, m.index)
			opts.Metrics.fail(err)
			return nil, err
		}
		if err := g.ReplaceNode(at, repl...); err != nil {
			err = errors.Wrapf(err, "splice %s node %q", m.opType, name)
			opts.Metrics.fail(err)
			return nil, err
		}
		shift += len(repl) - 1
		stats.Rewritten[m.opType]++

		opts.Logger.WithFields(m.rw.Describe()).WithField("index", at).Debug("rewrote node")
	}

	stats.ConstantsCreated = ctx.Cache.Created()
	stats.ConstantsReused = ctx.Cache.Reused()
	stats.NodesAfter = g.Len()

	opts.Metrics.observe(stats, time.Since(start))
	opts.Logger.WithFields(logrus.Fields{
		"rewritten":         stats.Total(),
		"constants_created": stats.ConstantsCreated,
		"constants_reused":  stats.ConstantsReused,
		"nodes_before":      stats.NodesBefore,
		"nodes_after":       stats.NodesAfter,
	}).Info("rewrite pass complete")
	return stats, nil
}

// matchAll matches every node that has a rule. It does not edit the graph.
func matchAll(ctx *Context, rules *Registry) ([]match, error) {
	var matches []match
	nodes := ctx.Graph.Nodes()
	for i := range nodes {
		node := &nodes[i]
		rule, ok := rules.lookup(node)
		if !ok {
			continue
		}
		rw, err := rule.Match(ctx, node)
		if err != nil {
			return nil, errors.Wrapf(err, "%s node %q (index %d)", node.OpType, node.Name, i)
		}
		matches = append(matches, match{index: i, opType: node.OpType, rw: rw})
	}
	return matches, nil
}

// RunModel rewrites the graph of model in place.
func RunModel(model *onnx.ModelProto, opts Options) (*Stats, error) {
	if model == nil || model.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	return Run(graph.New(model.Graph), opts)
}
