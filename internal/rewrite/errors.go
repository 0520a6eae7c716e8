package rewrite

import "github.com/pkg/errors"

// Match failures. Each aborts the pass before the graph is edited.
var (
	ErrMissingShapeInfo   = errors.New("missing shape info")
	ErrUnsupportedRank    = errors.New("unsupported rank")
	ErrMissingPadTensor   = errors.New("missing pad tensor")
	ErrIndexOutOfRange    = errors.New("pad index out of range")
	ErrUnsupportedPadding = errors.New("padding cannot be expressed as a channel concat")
)

// reason maps an error to a short label for metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingShapeInfo):
		return "missing_shape_info"
	case errors.Is(err, ErrUnsupportedRank):
		return "unsupported_rank"
	case errors.Is(err, ErrMissingPadTensor):
		return "missing_pad_tensor"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrUnsupportedPadding):
		return "unsupported_padding"
	default:
		return "internal"
	}
}
