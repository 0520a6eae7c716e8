package onnx

// GetAttr returns the named attribute of node, or nil.
func GetAttr(node *NodeProto, name string) *AttributeProto {
	for i := range node.Attributes {
		if node.Attributes[i].Name == name {
			return &node.Attributes[i]
		}
	}
	return nil
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *NodeProto, name string, defaultVal int64) int64 {
	if a := GetAttr(node, name); a != nil {
		return a.I
	}
	return defaultVal
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *NodeProto, name string, defaultVal float32) float32 {
	if a := GetAttr(node, name); a != nil {
		return a.F
	}
	return defaultVal
}

// GetAttrString returns a string attribute or default value.
func GetAttrString(node *NodeProto, name, defaultVal string) string {
	if a := GetAttr(node, name); a != nil {
		return string(a.S)
	}
	return defaultVal
}

// IntAttr builds an INT attribute.
func IntAttr(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

// TensorAttr builds a TENSOR attribute.
func TensorAttr(name string, t TensorProto) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoTensor, T: &t}
}
