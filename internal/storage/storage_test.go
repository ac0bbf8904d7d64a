package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-portal/internal/storage"
)

func TestParseURL(t *testing.T) {
	t.Run("Should strip version and extension for image assets", func(t *testing.T) {
		ref, err := storage.ParseURL("https://res.cloudinary.com/demo/image/upload/v1718000000/documents/pdf-dni-frente_ana_1718000000000.pdf")
		require.NoError(t, err)
		assert.Equal(t, "image", ref.ResourceType)
		assert.Equal(t, "documents/pdf-dni-frente_ana_1718000000000", ref.PublicID)
	})

	t.Run("Should keep the extension for raw assets", func(t *testing.T) {
		ref, err := storage.ParseURL("https://res.cloudinary.com/demo/raw/upload/v12/payments/proof.docx")
		require.NoError(t, err)
		assert.Equal(t, "raw", ref.ResourceType)
		assert.Equal(t, "payments/proof.docx", ref.PublicID)
	})

	t.Run("Should accept URLs without a version segment", func(t *testing.T) {
		ref, err := storage.ParseURL("https://res.cloudinary.com/demo/image/upload/payments/comprobante.png")
		require.NoError(t, err)
		assert.Equal(t, "payments/comprobante", ref.PublicID)
	})

	t.Run("Should reject URLs outside the store", func(t *testing.T) {
		_, err := storage.ParseURL("https://example.com/files/a.pdf")
		assert.ErrorIs(t, err, storage.ErrUnrecognizedURL)

		_, err = storage.ParseURL("not a url")
		assert.ErrorIs(t, err, storage.ErrUnrecognizedURL)
	})
}

func TestObjectName(t *testing.T) {
	t.Run("Should slugify kind and owner", func(t *testing.T) {
		now := time.UnixMilli(1718000000000)
		name := storage.ObjectName("PDF DNI FRENTE", "José Pérez", now)
		assert.Equal(t, "pdf-dni-frente_jose-perez_1718000000000", name)
	})

	t.Run("Should fall back when the owner has no usable characters", func(t *testing.T) {
		name := storage.ObjectName("FOTO CARNET", "  ", time.UnixMilli(1))
		assert.Equal(t, "foto-carnet_user_1", name)
	})
}

func TestDetectContentType(t *testing.T) {
	t.Run("Should accept PDF content", func(t *testing.T) {
		ct, err := storage.DetectContentType([]byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"))
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", ct)
	})

	t.Run("Should accept PNG content", func(t *testing.T) {
		png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
		ct, err := storage.DetectContentType(png)
		require.NoError(t, err)
		assert.Equal(t, "image/png", ct)
	})

	t.Run("Should reject plain text", func(t *testing.T) {
		_, err := storage.DetectContentType([]byte("hello world"))
		assert.ErrorIs(t, err, storage.ErrUnsupportedContent)
	})
}
