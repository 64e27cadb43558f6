package qrcode

import (
	"regexp"
	"strings"

	"github.com/smartdevs17/qrcode-generator/internal/models"
)

var prefixTypes = []struct {
	prefix string
	qrType models.QRCodeType
}{
	{"http://", models.QRCodeTypeURL},
	{"https://", models.QRCodeTypeURL},
	{"wifi:", models.QRCodeTypeWiFi},
	{"tel:", models.QRCodeTypePhone},
	{"sms:", models.QRCodeTypeSMS},
	{"smsto:", models.QRCodeTypeSMS},
	{"geo:", models.QRCodeTypeGeo},
	{"mailto:", models.QRCodeTypeEmail},
	{"matmsg:", models.QRCodeTypeEmail},
	{"begin:vcard", models.QRCodeTypeContact},
	{"mecard:", models.QRCodeTypeContact},
}

// scheme:rest with no whitespace anywhere
var uriLike = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:\S+$`)

// DetectType classifies decoded or user-entered content
func DetectType(content string) models.QRCodeType {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)

	for _, p := range prefixTypes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.qrType
		}
	}

	if strings.Contains(trimmed, "@") {
		return models.QRCodeTypeEmail
	}

	if uriLike.MatchString(trimmed) {
		return models.QRCodeTypeOther
	}

	return models.QRCodeTypeText
}
