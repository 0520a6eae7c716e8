package validate

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrStructural matches every *StructuralError with errors.Is.
var ErrStructural = errors.New("graph is not well-formed")

// Kinds of structural errors.
const (
	KindDanglingReference = "dangling_reference"
	KindForwardReference  = "forward_reference"
	KindDuplicateNode     = "duplicate_node"
	KindDuplicateProducer = "duplicate_producer"
	KindDuplicateConstant = "duplicate_initializer"
	KindUndefinedOutput   = "undefined_output"
	KindUnsupportedOp     = "unsupported_operator"
	KindMissingGraph      = "missing_graph"
)

// StructuralError describes one defect found by the Checker.
type StructuralError struct {
	Kind    string // One of the Kind constants
	Node    string // Node involved, if any
	Tensor  string // Tensor involved, if any
	Details string // Additional details
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	switch {
	case e.Node != "" && e.Tensor != "":
		return fmt.Sprintf("%s: node %q: tensor %q: %s", e.Kind, e.Node, e.Tensor, e.Details)
	case e.Node != "":
		return fmt.Sprintf("%s: node %q: %s", e.Kind, e.Node, e.Details)
	case e.Tensor != "":
		return fmt.Sprintf("%s: tensor %q: %s", e.Kind, e.Tensor, e.Details)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Details)
	}
}

// Is reports whether target is ErrStructural.
func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}
