package types

// MediaKind classifies a probed asset.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindImage MediaKind = "image"
)

// MediaAsset is the probed description of a file on disk. Immutable once
// returned by the prober; callers re-probe if the file changes.
type MediaAsset struct {
	Path     string
	Kind     MediaKind
	Duration float64 // seconds

	// Video-only fields; zero for audio and still images.
	FrameRate  float64
	FrameCount int
	Width      int
	Height     int
}

// Frame is one generated frame. Data is the encoded image payload (PNG as
// delivered by the server). Alpha, when present, is a separately encoded
// alpha plane.
type Frame struct {
	Index int
	Data  []byte
	Alpha []byte
}

// ServerHealth is the inference server's liveness report.
type ServerHealth struct {
	Status       string `json:"status"`
	Version      string `json:"version,omitempty"`
	ModelLoaded  bool   `json:"model_loaded"`
	GPUAvailable bool   `json:"gpu_available"`
}

// InferenceRequest is the payload sent to the generation service. Exactly
// one of Image or Video is set. Built once per run and not mutated after.
type InferenceRequest struct {
	Image      string `json:"image,omitempty"` // base64 PNG
	Video      string `json:"video,omitempty"` // base64 MP4
	Audio      string `json:"audio"`           // base64 WAV
	FPS        int    `json:"fps"`
	FaceCenter []int  `json:"face_center,omitempty"` // [x, y]
	BBoxShift  int    `json:"bbox_shift,omitempty"`
}

// KeySpec describes a chroma key: the background color to remove and the
// tolerance/softness of the extraction.
type KeySpec struct {
	Color      string  // hex, e.g. "#00FF00"
	Similarity float64 // 0..1, match tolerance
	Blend      float64 // 0..1, alpha falloff softness at the mask edge
}

// CompositeSpec describes one overlay operation. Foreground must be the raw
// clip with the key color still present; AudioSource is the input the audio
// track is taken from, since the raw keyed clip may carry none.
type CompositeSpec struct {
	Background  string
	Foreground  string
	AudioSource string
	Key         KeySpec
	ScaleWidth  int // 0 keeps the foreground size
	ScaleHeight int
	X           int
	Y           int
	Output      string
}

// EncodeSpec describes one frame-stream encode. Width/Height, when
// positive, rescale the output; zero keeps the frame size the service
// delivered.
type EncodeSpec struct {
	FPS        int
	Width      int
	Height     int
	AudioPath  string
	OutputPath string
}
