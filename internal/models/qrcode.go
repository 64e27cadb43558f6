package models

import (
	"fmt"
	"strings"
	"time"
)

// QRCodeType is the closed set of content categories a history record can carry
type QRCodeType string

const (
	QRCodeTypeText    QRCodeType = "text"
	QRCodeTypeURL     QRCodeType = "url"
	QRCodeTypeWiFi    QRCodeType = "wifi"
	QRCodeTypeContact QRCodeType = "contact"
	QRCodeTypeEmail   QRCodeType = "email"
	QRCodeTypePhone   QRCodeType = "phone"
	QRCodeTypeSMS     QRCodeType = "sms"
	QRCodeTypeGeo     QRCodeType = "geo"
	QRCodeTypeOther   QRCodeType = "other"
)

// AllQRCodeTypes lists every valid QRCodeType in declaration order.
var AllQRCodeTypes = []QRCodeType{
	QRCodeTypeText,
	QRCodeTypeURL,
	QRCodeTypeWiFi,
	QRCodeTypeContact,
	QRCodeTypeEmail,
	QRCodeTypePhone,
	QRCodeTypeSMS,
	QRCodeTypeGeo,
	QRCodeTypeOther,
}

// Valid reports whether t is one of the known categories.
func (t QRCodeType) Valid() bool {
	for _, known := range AllQRCodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseQRCodeType parses a category name case-insensitively.
func ParseQRCodeType(s string) (QRCodeType, error) {
	t := QRCodeType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown qr code type %q", s)
	}
	return t, nil
}

// QRCode is one history record: a code generated or scanned by this app
type QRCode struct {
	ID          int64      `json:"id" db:"id"`
	Content     string     `json:"content" db:"content"`
	Type        QRCodeType `json:"type" db:"type"`
	Timestamp   time.Time  `json:"timestamp" db:"recorded_at"`
	IsGenerated bool       `json:"is_generated" db:"is_generated"`
}

// Source returns "generated" or "scanned".
func (q *QRCode) Source() string {
	if q.IsGenerated {
		return SourceGenerated
	}
	return SourceScanned
}

// History sources
const (
	SourceGenerated = "generated"
	SourceScanned   = "scanned"
)

// QRCodeFilter for querying history records
type QRCodeFilter struct {
	Generated *bool      `json:"generated,omitempty"`
	Query     string     `json:"query,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// GeneratedFilter selects records by origin.
func GeneratedFilter(generated bool) QRCodeFilter {
	return QRCodeFilter{Generated: &generated}
}
