package utils

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstd coders are safe for concurrent EncodeAll/DecodeAll and expensive to build, so one of each is shared.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})

	return zstdEncoder, zstdDecoder, zstdErr
}

// Compress compresses data with compressionType. Anything but zstd means gzip.
func Compress(data []byte, compressionType string) ([]byte, error) {

	if compressionType == ZstdCompressionType {
		encoder, _, err := zstdCoders()
		if err != nil {
			return nil, err
		}
		return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
	}

	var compressed bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressed)
	if _, err := gzipWriter.Write(data); err != nil {
		return nil, err
	}

	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return compressed.Bytes(), nil
}

// Decompress returns the decompressed form of data, ready to be decoded.
func Decompress(data []byte, compressionType string) ([]byte, error) {

	if compressionType == ZstdCompressionType {
		_, decoder, err := zstdCoders()
		if err != nil {
			return nil, err
		}

		decompressed, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return decompressed, nil
	}

	gzipReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gzipReader.Close()

	return io.ReadAll(gzipReader)
}
