package middleware

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aretw0/moments/pkg/ports"
	"github.com/klauspost/compress/zstd"
)

// compressedPrefix marks values stored zstd-compressed.
const compressedPrefix = "zstd:"

// DefaultCompressionThreshold is the value size from which compression pays off.
const DefaultCompressionThreshold = 1024

// NewCompressionMiddleware creates a middleware that zstd-compresses values of at
// least threshold bytes. Smaller values, like draft sidecars, are stored as is.
// Values written before compression was enabled are read back unchanged.
func NewCompressionMiddleware(threshold int) Middleware {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return func(next ports.Storage) ports.Storage {
		return &valueStore{
			next: next,
			encode: func(v string) (string, error) {
				if len(v) < threshold {
					return v, nil
				}
				packed, err := compress([]byte(v))
				if err != nil {
					return "", fmt.Errorf("failed to compress value: %w", err)
				}
				return compressedPrefix + base64.StdEncoding.EncodeToString(packed), nil
			},
			decode: func(v string) (string, error) {
				if !strings.HasPrefix(v, compressedPrefix) {
					return v, nil
				}
				packed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, compressedPrefix))
				if err != nil {
					return "", fmt.Errorf("failed to decode compressed base64: %w", err)
				}
				plain, err := decompress(packed)
				if err != nil {
					return "", fmt.Errorf("failed to decompress value: %w", err)
				}
				return string(plain), nil
			},
		}
	}
}

func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
