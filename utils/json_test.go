package utils

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofcat/rabbitreader/models"
)

func testEncryption() *models.EncryptionConfig {
	return &models.EncryptionConfig{
		Enabled: true,
		Type:    AesSymmetricType,
		Hashkey: GetHashWithArgon("SuperStreetFighter2Turbo", "MBisonDidNothingWrong", 1, 12, 2, 32),
	}
}

func TestDecodeRecordPlainJSON(t *testing.T) {

	record, err := DecodeRecord([]byte(`{"id":1,"name":"one"}`), nil)
	require.NoError(t, err)

	assert.Equal(t, float64(1), record["id"])
	assert.Equal(t, "one", record["name"])
}

func TestDecodeRecordRejectsNonObjects(t *testing.T) {

	for _, body := range []string{`[1,2]`, `"text"`, `null`, `42`} {
		_, err := DecodeRecord([]byte(body), nil)
		assert.True(t, errors.Is(err, ErrNotAnObject), body)
	}

	_, err := DecodeRecord([]byte(`{"id":`), nil)
	assert.Error(t, err)
}

func TestDecodeRecordCompressedAndEncrypted(t *testing.T) {

	for _, compressionType := range []string{GzipCompressionType, ZstdCompressionType} {
		compression := &models.CompressionConfig{Enabled: true, Type: compressionType}
		encryption := testEncryption()

		body, err := CreatePayload(map[string]interface{}{"id": 2}, compression, encryption)
		require.NoError(t, err)

		record, err := DecodeRecord(body, &models.PayloadConfig{Compression: compression, Encryption: encryption})
		require.NoError(t, err, compressionType)
		assert.Equal(t, float64(2), record["id"])
	}
}

func TestDecodeRecordWrapped(t *testing.T) {

	compression := &models.CompressionConfig{Enabled: true, Type: ZstdCompressionType}
	encryption := testEncryption()

	body, err := CreateWrappedPayload(map[string]interface{}{"id": 3}, uuid.New(), "orders", compression, encryption)
	require.NoError(t, err)

	wrapped, err := ReadWrappedBodyFromJSONBytes(body)
	require.NoError(t, err)
	assert.True(t, wrapped.Body.Compressed)
	assert.True(t, wrapped.Body.Encrypted)
	assert.Equal(t, "orders", wrapped.LetterMetadata)

	// the envelope flags drive decoding; only the key comes from config
	record, err := DecodeRecord(body, &models.PayloadConfig{
		Wrapped:    true,
		Encryption: &models.EncryptionConfig{Hashkey: encryption.Hashkey},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(3), record["id"])
}

func TestDecodeRecordWrongKey(t *testing.T) {

	body, err := CreatePayload(map[string]interface{}{"id": 4}, nil, testEncryption())
	require.NoError(t, err)

	wrongKey := &models.EncryptionConfig{Enabled: true, Hashkey: GetHashWithArgon("nope", "nope", 1, 12, 2, 32)}
	_, err = DecodeRecord(body, &models.PayloadConfig{Encryption: wrongKey})
	assert.Error(t, err)
}
