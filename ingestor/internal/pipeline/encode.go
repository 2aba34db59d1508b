package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/trinetra-vision/trinetra/ingestor/internal/capture"
)

// TargetSize is the inference resolution published on the FrameBus.
const TargetSize = 640

// encodeFrame resizes a decoded frame to exactly TargetSize square
// (bilinear) and JPEG-encodes it.
func encodeFrame(f capture.Frame, quality int) ([]byte, error) {
	if len(f.Data) < f.Width*f.Height*3 {
		return nil, fmt.Errorf("pipeline: short frame data for %dx%d", f.Width, f.Height)
	}

	img := rgbaFromRGB(f.Data, f.Width, f.Height)
	if f.Width != TargetSize || f.Height != TargetSize {
		dst := image.NewRGBA(image.Rect(0, 0, TargetSize, TargetSize))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("pipeline: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func rgbaFromRGB(data []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4] = data[i*3]
		img.Pix[i*4+1] = data[i*3+1]
		img.Pix[i*4+2] = data[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}
