package face

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/geom"
	"gocv.io/x/gocv"
)

// SFaceExtractor detects faces with OpenCV's YuNet and embeds them with SFace.
type SFaceExtractor struct {
	detector   gocv.FaceDetectorYN
	recognizer gocv.FaceRecognizerSF
	config     Config
	logger     *slog.Logger
	mu         sync.Mutex // serializes inference
}

// NewSFace loads both ONNX models.
func NewSFace(cfg Config, logger *slog.Logger) (*SFaceExtractor, error) {
	for _, p := range []string{cfg.DetectorModel, cfg.RecognizerModel} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("face: model file not found: %s", p)
		}
	}
	if logger == nil {
		logger = log.L()
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.DetectorModel,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	recognizer := gocv.NewFaceRecognizerSFWithParams(
		cfg.RecognizerModel,
		"",
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &SFaceExtractor{
		detector:   detector,
		recognizer: recognizer,
		config:     cfg,
		logger:     logger.With("component", "face.sface"),
	}, nil
}

// DetectFaces finds faces in the JPEG frame and returns normalized
// boxes with unit-length embeddings.
func (e *SFaceExtractor) DetectFaces(ctx context.Context, frame []byte) ([]Observation, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("face: decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyFrame
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	e.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	e.detector.Detect(img, &faces)

	var out []Observation
	for r := 0; r < faces.Rows(); r++ {
		// YuNet rows: x, y, w, h, five landmark pairs, score.
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		emb, err := e.embed(img, faces, r)
		if err != nil {
			e.logger.Debug("skipping face without embedding", "row", r, "error", err)
			continue
		}

		out = append(out, Observation{
			Embedding: emb,
			BBox:      geom.BBox{X: x / imgW, Y: y / imgH, W: w / imgW, H: h / imgH}.Clamp(),
			Score:     score,
		})
	}

	if len(out) > 0 {
		e.logger.Debug("faces detected", "count", len(out))
	}
	return out, nil
}

func (e *SFaceExtractor) embed(img, faces gocv.Mat, row int) ([]float64, error) {
	box := faces.RowRange(row, row+1)
	defer box.Close()

	aligned := gocv.NewMat()
	defer aligned.Close()
	e.recognizer.AlignCrop(img, box, &aligned)
	if aligned.Empty() {
		return nil, fmt.Errorf("face: align failed")
	}

	feature := gocv.NewMat()
	defer feature.Close()
	e.recognizer.Feature(aligned, &feature)
	if feature.Empty() {
		return nil, ErrEmptyEmbedding
	}

	n := feature.Cols() * feature.Rows()
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		v[i] = float64(feature.GetFloatAt(0, i))
	}
	return Normalize(v), nil
}

// Distance returns the Euclidean distance between two embeddings.
func (e *SFaceExtractor) Distance(a, b []float64) float64 {
	return SafeDistance(a, b)
}

// Close releases the model resources.
func (e *SFaceExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detector.Close()
	e.recognizer.Close()
	return nil
}

var _ Extractor = (*SFaceExtractor)(nil)
