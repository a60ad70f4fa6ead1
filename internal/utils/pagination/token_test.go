package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeToken(t *testing.T) {
	documentDate := time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC)
	createdAt := time.Date(2023, 5, 15, 14, 30, 45, 123456789, time.UTC)

	token := EncodeToken(documentDate, createdAt)
	assert.NotEmpty(t, token, "Token should not be empty")

	decodedDocumentDate, decodedCreatedAt, err := DecodeToken(token)
	assert.NoError(t, err, "Decoding should not return an error")
	assert.Equal(t, documentDate, decodedDocumentDate, "Document date should match after decode")
	assert.Equal(t, createdAt, decodedCreatedAt, "Created at time should match after decode")
}

func TestDecodeTokenInvalidInput(t *testing.T) {
	_, _, err := DecodeToken("not-valid-base64!!")
	assert.Error(t, err, "Invalid base64 should return an error")

	// Valid base64 but missing the separator
	_, _, err = DecodeToken("aGVsbG8=")
	assert.Error(t, err, "Token without separator should return an error")
}
