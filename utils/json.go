package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/houseofcat/rabbitreader/models"
)

const (
	// GzipCompressionType helps identify which compression/decompression to use.
	GzipCompressionType = "gzip"

	// ZstdCompressionType helps identify which compression/decompression to use.
	ZstdCompressionType = "zstd"

	// AesSymmetricType helps identity which encryption/decryption to use.
	AesSymmetricType = "aes"
)

// ErrNotAnObject is returned when a body is valid JSON but not a JSON object.
var ErrNotAnObject = errors.New("payload is not a JSON object")

// WrappedBody is the plaintext envelope a producer may put around the real payload.
type WrappedBody struct {
	LetterID       uuid.UUID   `json:"LetterID"`
	LetterMetadata string      `json:"LetterMetadata"`
	Body           *ModdedBody `json:"Body"`
}

// ModdedBody records which modifications were applied to Data.
type ModdedBody struct {
	Encrypted   bool   `json:"Encrypted"`
	EType       string `json:"EncryptionType,omitempty"`
	Compressed  bool   `json:"Compressed"`
	CType       string `json:"CompressionType,omitempty"`
	UTCDateTime string `json:"UTCDateTime"`
	Data        []byte `json:"Data"`
}

// CreatePayload marshals input and optionally compresses, then encrypts, the bytes.
func CreatePayload(
	input interface{},
	compression *models.CompressionConfig,
	encryption *models.EncryptionConfig) ([]byte, error) {

	var json = jsoniter.ConfigFastest
	data, err := json.Marshal(&input)
	if err != nil {
		return nil, err
	}

	if compression != nil && compression.Enabled {
		if data, err = Compress(data, compression.Type); err != nil {
			return nil, err
		}
	}

	if encryption != nil && encryption.Enabled {
		if data, err = EncryptWithAes(data, encryption.Hashkey, defaultNonceSize); err != nil {
			return nil, err
		}
	}

	return data, nil
}

// CreateWrappedPayload wraps your data in a WrappedBody and performs the selected modifications to data.
func CreateWrappedPayload(
	input interface{},
	letterID uuid.UUID,
	metadata string,
	compression *models.CompressionConfig,
	encryption *models.EncryptionConfig) ([]byte, error) {

	wrappedBody := &WrappedBody{
		LetterID:       letterID,
		LetterMetadata: metadata,
		Body:           &ModdedBody{},
	}

	innerData, err := CreatePayload(input, compression, encryption)
	if err != nil {
		return nil, err
	}

	if compression != nil && compression.Enabled {
		wrappedBody.Body.Compressed = true
		wrappedBody.Body.CType = compressionType(compression)
	}

	if encryption != nil && encryption.Enabled {
		wrappedBody.Body.Encrypted = true
		wrappedBody.Body.EType = AesSymmetricType
	}

	wrappedBody.Body.UTCDateTime = time.Now().UTC().Format(time.RFC3339)
	wrappedBody.Body.Data = innerData

	var json = jsoniter.ConfigFastest
	return json.Marshal(&wrappedBody)
}

// ReadWrappedBodyFromJSONBytes simply read the bytes as a WrappedBody.
func ReadWrappedBodyFromJSONBytes(data []byte) (*WrappedBody, error) {

	var json = jsoniter.ConfigFastest
	body := &WrappedBody{}
	if err := json.Unmarshal(data, body); err != nil {
		return nil, err
	}

	if body.Body == nil {
		return nil, errors.New("wrapped payload has no body")
	}

	return body, nil
}

// ReadPayload undoes CreatePayload: decrypt first, then decompress.
func ReadPayload(data []byte, compression *models.CompressionConfig, encryption *models.EncryptionConfig) ([]byte, error) {

	var err error
	if encryption != nil && encryption.Enabled {
		if data, err = DecryptWithAes(data, encryption.Hashkey, defaultNonceSize); err != nil {
			return nil, fmt.Errorf("failed to decrypt: %w", err)
		}
	}

	if compression != nil && compression.Enabled {
		if data, err = Decompress(data, compression.Type); err != nil {
			return nil, fmt.Errorf("failed to decompress: %w", err)
		}
	}

	return data, nil
}

// DecodeRecord turns one message body into a Record, undoing whatever the payload config says was applied.
func DecodeRecord(body []byte, payload *models.PayloadConfig) (models.Record, error) {

	data := body
	if payload != nil {

		compression := payload.Compression
		encryption := payload.Encryption

		if payload.Wrapped {
			wrapped, err := ReadWrappedBodyFromJSONBytes(body)
			if err != nil {
				return nil, fmt.Errorf("failed to read wrapped payload: %w", err)
			}

			compression = &models.CompressionConfig{Enabled: wrapped.Body.Compressed, Type: wrapped.Body.CType}
			encryption = wrappedEncryption(wrapped.Body, payload.Encryption)
			data = wrapped.Body.Data
		}

		var err error
		if data, err = ReadPayload(data, compression, encryption); err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}

	var json = jsoniter.ConfigFastest
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}

	object, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, ErrNotAnObject
	}

	return models.Record(object), nil
}

func wrappedEncryption(body *ModdedBody, configured *models.EncryptionConfig) *models.EncryptionConfig {

	if !body.Encrypted {
		return nil
	}

	encryption := &models.EncryptionConfig{Enabled: true, Type: body.EType}
	if configured != nil {
		encryption.Hashkey = configured.Hashkey
	}

	return encryption
}

func compressionType(compression *models.CompressionConfig) string {
	if compression.Type == ZstdCompressionType {
		return ZstdCompressionType
	}

	return GzipCompressionType
}
