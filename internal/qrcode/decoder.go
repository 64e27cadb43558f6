package qrcode

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// Decode failure reasons, used as metric labels
const (
	ReasonNotFound     = "not_found"
	ReasonUnreadable   = "unreadable"
	ReasonInvalidImage = "invalid_image"
)

// Decoder reads QR codes from images
type Decoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewDecoder creates a decoder that tries harder on difficult images
func NewDecoder() *Decoder {
	return &Decoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER:       true,
			gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE},
		},
	}
}

// Decode returns the text of the first QR code found in img
func (d *Decoder) Decode(img image.Image) (string, error) {
	if img == nil {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Image is required", "")
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Unsupported image", err.Error())
	}

	// QRCodeReader keeps per-call state, so each decode gets its own reader.
	result, err := zxingqr.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return "", utils.NewAppError(utils.ErrCodeNotFound, "No QR code found in image", "")
		}
		return "", utils.NewAppError(utils.ErrCodeProcessing, "QR code could not be read", err.Error())
	}

	return result.GetText(), nil
}

// DecodeBytes sniffs PNG, JPEG or GIF data and decodes it
func (d *Decoder) DecodeBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Image is empty", "")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Unsupported image format", err.Error())
	}
	return d.Decode(img)
}

// FailureReason maps a decode error to a short metric label
func FailureReason(err error) string {
	switch utils.ErrorCode(err) {
	case utils.ErrCodeNotFound:
		return ReasonNotFound
	case utils.ErrCodeValidation:
		return ReasonInvalidImage
	default:
		return ReasonUnreadable
	}
}
