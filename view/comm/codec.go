package comm

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Payloads moved between ranks are JSON documents framed with zstd. The
// encoder and decoder are safe for concurrent EncodeAll/DecodeAll use.
var (
	payloadEncoder *zstd.Encoder
	payloadDecoder *zstd.Decoder
)

func init() {
	var err error
	payloadEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("comm: zstd encoder: %v", err))
	}
	payloadDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("comm: zstd decoder: %v", err))
	}
}

// Encode serializes v for a collective payload.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return payloadEncoder.EncodeAll(raw, nil), nil
}

// Decode reverses Encode. An empty payload leaves v untouched.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	raw, err := payloadDecoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompressing payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

// MustEncode is Encode for values that always marshal (plain structs of
// numbers and strings). Panics otherwise.
func MustEncode(v any) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}
