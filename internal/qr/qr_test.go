package qr_test

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-pos/internal/qr"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestEncodeProducesPNG(t *testing.T) {
	r := qr.Renderer{}
	png, err := r.Encode(`{"m":"UMKM SAYUR SEHAT","c":"IDR","a":22000}`)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestFallbackURLCarriesIdenticalPayload(t *testing.T) {
	payload := `{"m":"UMKM SAYUR SEHAT","c":"IDR","a":22000,"it":[{"n":"Bayam","q":2}]}`
	r := qr.Renderer{Size: 220}

	raw := r.FallbackURL(payload)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "api.qrserver.com", parsed.Host)
	require.Equal(t, "220x220", parsed.Query().Get("size"))
	require.Equal(t, payload, parsed.Query().Get("data"), "payload bytes must round-trip unchanged")
}

func TestFallbackURLCustomBase(t *testing.T) {
	r := qr.Renderer{FallbackBaseURL: "https://qr.example.test/render", Size: 100}
	raw := r.FallbackURL("x")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "qr.example.test", parsed.Host)
	require.Equal(t, "100x100", parsed.Query().Get("size"))
}
