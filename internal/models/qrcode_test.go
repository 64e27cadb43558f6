package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQRCodeType(t *testing.T) {
	for _, typ := range AllQRCodeTypes {
		parsed, err := ParseQRCodeType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	parsed, err := ParseQRCodeType(" WIFI ")
	require.NoError(t, err)
	assert.Equal(t, QRCodeTypeWiFi, parsed)

	_, err = ParseQRCodeType("barcode")
	assert.Error(t, err)
	assert.False(t, QRCodeType("").Valid())
}

func TestQRCodeSource(t *testing.T) {
	assert.Equal(t, SourceGenerated, (&QRCode{IsGenerated: true}).Source())
	assert.Equal(t, SourceScanned, (&QRCode{}).Source())

	f := GeneratedFilter(false)
	require.NotNil(t, f.Generated)
	assert.False(t, *f.Generated)
}
