package face

// Config holds extractor configuration.
type Config struct {
	DetectorModel    string  // Path to the YuNet ONNX model
	RecognizerModel  string  // Path to the SFace ONNX model
	ConfidenceThresh float64 // Minimum detection score
	NMSThresh        float64 // Non-maximum suppression threshold
	InputWidth       int     // Initial detector input width
	InputHeight      int     // Initial detector input height
}

// DefaultConfig returns production defaults for YuNet + SFace.
func DefaultConfig() Config {
	return Config{
		DetectorModel:    "models/face_detection_yunet_2023mar.onnx",
		RecognizerModel:  "models/face_recognition_sface_2021dec.onnx",
		ConfidenceThresh: 0.6,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}
