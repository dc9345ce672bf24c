package services

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
)

// PayloadCodec serialises snapshot payloads and compresses the large ones
type PayloadCodec struct {
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// EncodedPayload is a payload in its persisted form
type EncodedPayload struct {
	Data         []byte
	Compressed   bool
	OriginalSize int
	StoredSize   int
	Ratio        float64
}

// NewPayloadCodec creates a codec that compresses payloads larger than threshold bytes
func NewPayloadCodec(threshold int) (*PayloadCodec, error) {
	// EncodeAll and DecodeAll are safe for concurrent use
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &PayloadCodec{
		threshold: threshold,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// Compress compresses raw bytes with zstd
func (c *PayloadCodec) Compress(src []byte) []byte {
	return c.encoder.EncodeAll(src, make([]byte, 0, len(src)/2))
}

// Decompress reverses Compress
func (c *PayloadCodec) Decompress(src []byte) ([]byte, error) {
	return c.decoder.DecodeAll(src, nil)
}

// Encode serialises a payload to JSON and compresses it above the threshold
func (c *PayloadCodec) Encode(p *snapshot.Payload) (EncodedPayload, error) {
	if p == nil {
		p = &snapshot.Payload{}
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return EncodedPayload{}, fmt.Errorf("marshal payload: %w", err)
	}

	out := EncodedPayload{
		Data:         raw,
		OriginalSize: len(raw),
		StoredSize:   len(raw),
		Ratio:        1,
	}
	if len(raw) <= c.threshold {
		return out, nil
	}

	compressed := c.Compress(raw)
	out.Data = compressed
	out.Compressed = true
	out.StoredSize = len(compressed)
	out.Ratio = float64(len(compressed)) / float64(len(raw))
	return out, nil
}

// Decode restores a payload from its persisted form
func (c *PayloadCodec) Decode(data []byte, compressed bool) (*snapshot.Payload, error) {
	raw := data
	if compressed {
		var err error
		raw, err = c.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
	}

	var p snapshot.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &p, nil
}

// Close releases the encoder and decoder
func (c *PayloadCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
