package pairing

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderPNG(t *testing.T) {
	encoded, err := RenderPNG("2@abcdef1234567890")
	require.NoError(t, err)

	png, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(png[1:4]), "PNG"), "expected a PNG header")
}

func TestRenderASCII(t *testing.T) {
	art, err := RenderASCII("2@abcdef1234567890")
	require.NoError(t, err)
	require.Greater(t, strings.Count(art, "\n"), 5, "expected multi-line QR art")
}
