// Package onnxpad rewrites ONNX models for runtimes that lack the Pad operator.
//
// Every Pad node of the default domain is replaced by a ConstantOfShape node
// that builds the padding block and a Concat node that appends it along the
// channel axis. Shape constants are shared between Pad nodes that need the
// same fill shape. The rewritten graph is validated before anything is saved.
//
// # Example Usage
//
//	report, err := onnxpad.ConvertFile("model.onnx", "", onnxpad.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: %d Pad nodes rewritten\n", report.Destination, report.Stats.Total())
//
// Models that are already in memory use [Convert]:
//
//	model, err := onnxpad.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := onnxpad.Convert(model, onnxpad.DefaultOptions()); err != nil {
//	    log.Fatal(err)
//	}
//	err = onnxpad.Save("model_barracuda.onnx", model)
//
// Nodes, initializers and other records the rewrite does not touch are
// written back byte for byte.
package onnxpad

import (
	"path/filepath"
	"strings"

	"github.com/born-ml/onnxpad/internal/onnx"
	"github.com/born-ml/onnxpad/internal/onnx/operators"
	"github.com/born-ml/onnxpad/internal/rewrite"
	"github.com/born-ml/onnxpad/internal/validate"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultSuffix is appended to the source file name when no destination is given.
const DefaultSuffix = "_barracuda"

// Model is a decoded ONNX model.
type Model = onnx.ModelProto

// ModelInfo summarizes a model without rewriting it.
type ModelInfo = onnx.ModelInfo

// Stats summarizes a rewrite pass.
type Stats = rewrite.Stats

// Metrics records rewrite passes in Prometheus.
type Metrics = rewrite.Metrics

// Validator checks a graph after rewriting.
type Validator = validate.Validator

// StructuralError describes a defect in a rewritten graph.
type StructuralError = validate.StructuralError

// Errors returned by Convert. Test with errors.Is.
var (
	ErrMissingShapeInfo   = rewrite.ErrMissingShapeInfo
	ErrUnsupportedRank    = rewrite.ErrUnsupportedRank
	ErrMissingPadTensor   = rewrite.ErrMissingPadTensor
	ErrIndexOutOfRange    = rewrite.ErrIndexOutOfRange
	ErrUnsupportedPadding = rewrite.ErrUnsupportedPadding
	ErrStructural         = validate.ErrStructural
)

// Options configures a conversion.
type Options struct {
	// Strict rejects Pad nodes that a channel concat cannot reproduce
	// exactly. When false, only the trailing channel amount is honored.
	Strict bool

	// CheckOps makes validation also reject operators the Barracuda
	// runtime does not support.
	CheckOps bool

	// Validator replaces the structural checker when set.
	Validator Validator

	// Logger receives progress. Nil discards it.
	Logger logrus.FieldLogger

	// Metrics is updated after every rewrite pass when set.
	Metrics *Metrics
}

// DefaultOptions returns the default conversion options.
//
// Default configuration:
//   - Strict mode: disabled (non-channel padding is ignored)
//   - Runtime operator check: disabled
//   - Logging: logrus standard logger
func DefaultOptions() Options {
	return Options{
		Logger: logrus.StandardLogger(),
	}
}

// NewMetrics creates rewrite metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return rewrite.NewMetrics(reg)
}

// Report describes a successful conversion.
type Report struct {
	Source      string         // Input path, empty for Convert
	Destination string         // Output path, empty when nothing was saved
	Stats       *Stats         // Rewrite pass summary
	OpsBefore   map[string]int // Nodes per op type before rewriting
	OpsAfter    map[string]int // Nodes per op type after rewriting
}

// Load reads and decodes an ONNX file.
func Load(path string) (*Model, error) {
	return onnx.ParseFile(path)
}

// Save encodes model and writes it to path.
func Save(path string, model *Model) error {
	return onnx.WriteFile(path, model)
}

// GetModelInfo extracts basic information from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	return onnx.GetModelInfo(path)
}

// SupportedOps returns the operators the Barracuda runtime accepts.
func SupportedOps() []string {
	return operators.Barracuda().SupportedOps()
}

// Convert rewrites model in place and validates the result.
//
// On error the model must be discarded: a rewrite failure leaves the graph
// untouched, but a validation failure happens after the graph was edited.
func Convert(model *Model, opts Options) (*Report, error) {
	if model == nil || model.Graph == nil {
		return nil, errors.New("model has no graph")
	}

	report := &Report{OpsBefore: onnx.Info(model).OpCounts}

	stats, err := rewrite.RunModel(model, rewrite.Options{
		Strict:  opts.Strict,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "rewrite")
	}
	report.Stats = stats
	report.OpsAfter = onnx.Info(model).OpCounts

	if err := validator(opts).Validate(model.Graph); err != nil {
		return nil, errors.Wrap(err, "validate")
	}
	return report, nil
}

func validator(opts Options) Validator {
	if opts.Validator != nil {
		return opts.Validator
	}
	c := &validate.Checker{}
	if opts.CheckOps {
		c.Runtime = operators.Barracuda()
	}
	return c
}

// ConvertFile converts the model at src and writes it to dst. An empty dst
// selects OutputPath(src, DefaultSuffix). Nothing is written on error.
func ConvertFile(src, dst string, opts Options) (*Report, error) {
	model, err := Load(src)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", src)
	}
	report, err := Convert(model, opts)
	if err != nil {
		return nil, errors.Wrap(err, src)
	}

	if dst == "" {
		dst = OutputPath(src, DefaultSuffix)
	}
	if err := Save(dst, model); err != nil {
		return nil, errors.Wrapf(err, "save %s", dst)
	}
	report.Source = src
	report.Destination = dst
	return report, nil
}

// OutputPath returns src with suffix inserted before the extension,
// e.g. model.onnx -> model_barracuda.onnx.
func OutputPath(src, suffix string) string {
	ext := filepath.Ext(src)
	if ext == "" {
		ext = ".onnx"
	}
	return strings.TrimSuffix(src, filepath.Ext(src)) + suffix + ext
}
