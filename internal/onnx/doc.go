// Package onnx provides ONNX model decoding and encoding.
//
// ONNX (Open Neural Network Exchange) is an open format for representing deep learning models.
// This package implements a hand-written protobuf codec for .onnx files without generated code.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, initializers and value info
//   - NodeProto: Single operation in the graph (e.g., Conv, Pad, Concat)
//   - TensorProto: Weight/initializer tensor with data and shape
//   - ValueInfoProto: Input/output/intermediate tensor type information
//
// Records that are decoded but not edited keep their original bytes and are
// written back unchanged by Encode, so rewriting one node does not disturb
// the rest of the file.
//
// Example usage:
//
//	model, err := onnx.ParseFile("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, node := range model.Graph.Nodes {
//	    fmt.Printf("Op: %s (type: %s)\n", node.Name, node.OpType)
//	}
//
//	if err := onnx.WriteFile("copy.onnx", model); err != nil {
//	    log.Fatal(err)
//	}
package onnx
