package encoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrUnsupportedFormat is returned for images whose channel layout cannot be
// normalized to 3-channel RGB (grayscale, CMYK, undecodable data).
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrNoFaceDetected is returned when an image contains no detectable face.
var ErrNoFaceDetected = errors.New("no face detected")

// maxFrameSize is the longest edge a frame is downscaled to before encoding.
const maxFrameSize = 1024

// DecodeBase64Image decodes a raw or data-URL base64 image payload.
func DecodeBase64Image(payload string) ([]byte, error) {
	// Strip a data URL prefix ("data:image/jpeg;base64,....") if present.
	if idx := strings.Index(payload, ","); idx != -1 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return data, nil
}

// NormalizeFrame decodes an image, normalizes 3- and 4-channel inputs to
// 3-channel RGB, rejects other channel depths, and downscales large frames.
// The result is always JPEG-encoded.
func NormalizeFrame(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.CMYK, *image.Paletted:
		return nil, fmt.Errorf("%w: not a 3- or 4-channel image", ErrUnsupportedFormat)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// JPEG encoding drops the alpha channel, which is the 4-to-3 channel
	// normalization the encoder service expects.
	if width <= maxFrameSize && height <= maxFrameSize {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxFrameSize
		newHeight = int(float64(height) * float64(maxFrameSize) / float64(width))
	} else {
		newHeight = maxFrameSize
		newWidth = int(float64(width) * float64(maxFrameSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}
