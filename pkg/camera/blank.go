package camera

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Blank renders a flat gray frame with a center cross. It stands in for
// the stream when flying the mock vehicle.
func Blank(width, height, quality int) (*Static, error) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(96, 96, 96, 0), height, width, gocv.MatTypeCV8UC3)
	defer img.Close()

	cx, cy := width/2, height/2
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.Line(&img, image.Pt(cx-20, cy), image.Pt(cx+20, cy), white, 2)
	gocv.Line(&img, image.Pt(cx, cy-20), image.Pt(cx, cy+20), white, 2)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode blank frame: %w", err)
	}
	defer buf.Close()
	return &Static{Frame: append([]byte(nil), buf.GetBytes()...)}, nil
}
