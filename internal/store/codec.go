package store

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/cellcomm/cellan/internal/model"
)

// codec turns documents into zstd-compressed JSON blobs and back.
// Iteration documents carry one entry per cell, so compression keeps rows
// small enough for fast point lookups.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &codec{encoder: enc, decoder: dec}, nil
}

func (c *codec) encode(doc interface{}) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// decode decompresses blob into doc and validates the result.
func (c *codec) decode(blob []byte, doc model.Document) error {
	raw, err := c.decoder.DecodeAll(blob, nil)
	if err != nil {
		return fmt.Errorf("zstd decompress failed: %w", err)
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidDocument, err)
	}
	return doc.Validate()
}

func (c *codec) close() {
	c.encoder.Close()
	c.decoder.Close()
}
