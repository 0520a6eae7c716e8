package rewrite

import "github.com/pkg/errors"

// channelEndIndex is the flat position of the channel end amount in a
// rank-4 pads tensor. minPadValues is the shortest tensor that has it.
const (
	channelEndIndex = 5
	minPadValues    = channelEndIndex + 1
)

// PadLayout holds the pads operand of Pad.
// ONNX stores pads as [x0_begin, ..., xn_begin, x0_end, ..., xn_end].
// Begins and Ends are only set when the tensor length matches the data rank.
type PadLayout struct {
	Values []int64
	Begins []int64
	Ends   []int64
}

// DecodePads decodes a flat pads tensor for data of the given rank.
// Only tensors shorter than minPadValues are rejected; a length other
// than 2*rank leaves the layout without per-axis amounts.
func DecodePads(values []int64, rank int) (PadLayout, error) {
	if len(values) < minPadValues {
		return PadLayout{}, errors.Wrapf(ErrIndexOutOfRange, "pads has %d values, need at least %d", len(values), minPadValues)
	}
	layout := PadLayout{Values: values}
	if len(values) == 2*rank {
		layout.Begins = values[:rank:rank]
		layout.Ends = values[rank:]
	}
	return layout, nil
}

// ChannelEnd returns the trailing channel amount, read at flat position 5.
func (p PadLayout) ChannelEnd() int64 {
	return p.Values[channelEndIndex]
}

// Rank returns the number of axes described, or 0 when the tensor length
// does not match the data rank.
func (p PadLayout) Rank() int {
	return len(p.Begins)
}

// Begin returns the leading amount for axis.
func (p PadLayout) Begin(axis int) int64 {
	return p.Begins[axis]
}

// End returns the trailing amount for axis.
func (p PadLayout) End(axis int) int64 {
	return p.Ends[axis]
}

// OnlyTrailing reports whether every amount other than the trailing
// amount of axis is zero. A layout without per-axis amounts reports false.
func (p PadLayout) OnlyTrailing(axis int) bool {
	if p.Rank() == 0 {
		return false
	}
	for i := range p.Begins {
		if p.Begins[i] != 0 {
			return false
		}
		if i != axis && p.Ends[i] != 0 {
			return false
		}
	}
	return true
}
