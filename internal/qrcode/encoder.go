// File: internal/qrcode/encoder.go
package qrcode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// DefaultSize is the edge length of a generated QR code in pixels
const DefaultSize = 512

// Encoder turns text into QR code images
type Encoder struct {
	writer          *zxingqr.QRCodeWriter
	size            int
	maxSize         int
	margin          int
	errorCorrection decoder.ErrorCorrectionLevel
	ecName          string
}

// NewEncoder creates an encoder from the QR configuration
func NewEncoder(cfg *config.QRConfig) (*Encoder, error) {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	maxSize := cfg.MaxSize
	if maxSize < size {
		maxSize = size
	}
	if cfg.Margin < 0 {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "QR margin must not be negative", fmt.Sprintf("%d", cfg.Margin))
	}

	ecName := strings.ToUpper(strings.TrimSpace(cfg.ErrorCorrection))
	if ecName == "" {
		ecName = "M"
	}
	level, err := parseErrorCorrection(ecName)
	if err != nil {
		return nil, err
	}

	return &Encoder{
		writer:          zxingqr.NewQRCodeWriter(),
		size:            size,
		maxSize:         maxSize,
		margin:          cfg.Margin,
		errorCorrection: level,
		ecName:          ecName,
	}, nil
}

func parseErrorCorrection(name string) (decoder.ErrorCorrectionLevel, error) {
	switch name {
	case "L":
		return decoder.ErrorCorrectionLevel_L, nil
	case "M":
		return decoder.ErrorCorrectionLevel_M, nil
	case "Q":
		return decoder.ErrorCorrectionLevel_Q, nil
	case "H":
		return decoder.ErrorCorrectionLevel_H, nil
	default:
		return decoder.ErrorCorrectionLevel_M, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported error correction level", name)
	}
}

// Size returns the default edge length
func (e *Encoder) Size() int {
	return e.size
}

// resolveSize applies the default and enforces the upper bound
func (e *Encoder) resolveSize(size int) (int, error) {
	if size == 0 {
		return e.size, nil
	}
	if size < 0 || size > e.maxSize {
		return 0, utils.NewAppError(utils.ErrCodeValidation,
			"Invalid QR code size",
			fmt.Sprintf("size must be between 1 and %d", e.maxSize))
	}
	return size, nil
}

// Encode renders content into a size x size bit matrix. A size of 0 selects the default.
func (e *Encoder) Encode(content string, size int) (*gozxing.BitMatrix, error) {
	if strings.TrimSpace(content) == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Please enter text or URL to generate QR code", "")
	}

	size, err := e.resolveSize(size)
	if err != nil {
		return nil, err
	}

	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: e.errorCorrection,
		gozxing.EncodeHintType_MARGIN:           e.margin,
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
	}

	matrix, err := e.writer.Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, hints)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProcessing, "Failed to encode QR code", err.Error())
	}
	return matrix, nil
}

// EncodeImage renders content as a grayscale image with black modules on white
func (e *Encoder) EncodeImage(content string, size int) (*image.Gray, error) {
	matrix, err := e.Encode(content, size)
	if err != nil {
		return nil, err
	}
	return matrixToImage(matrix), nil
}

// EncodePNG renders content as PNG bytes
func (e *Encoder) EncodePNG(content string, size int) ([]byte, error) {
	img, err := e.EncodeImage(content, size)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProcessing, "Failed to write PNG", err.Error())
	}
	return buf.Bytes(), nil
}

// cacheKey identifies a rendering; encoder settings are part of it so a config
// change never serves stale images.
func (e *Encoder) cacheKey(content string, size int) string {
	return fmt.Sprintf("%d:%s:%d:%s", size, e.ecName, e.margin, utils.ContentHash(content))
}

func matrixToImage(matrix *gozxing.BitMatrix) *image.Gray {
	width, height := matrix.GetWidth(), matrix.GetHeight()
	img := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if matrix.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}
