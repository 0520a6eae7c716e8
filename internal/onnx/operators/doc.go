// Package operators describes which ONNX operators a target inference
// runtime accepts.
//
// A Registry maps an operator type to a Constraint. Operators absent from the
// registry are unsupported; registered operators may still reject individual
// nodes whose attributes or operands the runtime cannot handle.
package operators
