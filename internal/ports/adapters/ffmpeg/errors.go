package ffmpeg

import "fmt"

// ProbeError reports an asset that could not be described.
type ProbeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe %s: %s", e.Path, e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// EncodeError reports a failed encode/mux, with ffmpeg's stderr attached.
type EncodeError struct {
	Output string
	Detail string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v\n%s", e.Output, e.Err, e.Detail)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// CompositeError reports a failed key extraction or overlay.
type CompositeError struct {
	Output string
	Reason string
	Err    error
}

func (e *CompositeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("composite %s: %s: %v", e.Output, e.Reason, e.Err)
	}
	return fmt.Sprintf("composite %s: %s", e.Output, e.Reason)
}

func (e *CompositeError) Unwrap() error { return e.Err }
