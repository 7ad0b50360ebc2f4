/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package codec compresses and decompresses chunk payloads and computes the
// content hash that addresses them in the chunk store.
package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// EncodedChunk is the on-disk representation of a chunk: an 8-byte
// little-endian original-size prefix followed by a zstd frame, addressed by
// the SHA-256 of the whole buffer.
type EncodedChunk struct {
	Bytes []byte
	Hash  string
}

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	// A pinned encoder level with no multi-threaded racing producers keeps
	// compression deterministic, which content addressing depends on.
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("codec: failed to initialise zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("codec: failed to initialise zstd decoder: %v", err))
	}
}

// CompressionError wraps a failure from the underlying compressor.
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string { return fmt.Sprintf("compression failed: %v", e.Err) }
func (e *CompressionError) Unwrap() error { return e.Err }

// CorruptionError indicates an encoded chunk buffer is malformed: too short
// to hold its own size prefix, or the decompressor rejected it outright.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string { return "chunk corrupt: " + e.Reason }

// SizeMismatchError indicates the decoder produced fewer bytes than the
// embedded original-size prefix declared.
type SizeMismatchError struct {
	Expected int
	Got      int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("decoded size mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Encode compresses payload and returns the encoded buffer plus its content
// address (SHA-256 hex of the encoded buffer, size prefix included).
func Encode(payload []byte) (EncodedChunk, error) {
	compressed := encoder.EncodeAll(payload, nil)

	buf := make([]byte, 8+len(compressed))
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(payload)))
	copy(buf[8:], compressed)

	sum := sha256.Sum256(buf)
	return EncodedChunk{Bytes: buf, Hash: hex.EncodeToString(sum[:])}, nil
}

// Decode reverses Encode: it reads the embedded original size and
// decompresses the remainder to exactly that many bytes.
func Decode(buf []byte) ([]byte, error) {
	if len(buf) < 8 {
		return nil, &CorruptionError{Reason: "buffer shorter than size prefix"}
	}

	origSize := binary.LittleEndian.Uint64(buf[:8])
	if origSize > 1<<40 {
		return nil, &CorruptionError{Reason: "implausible original size"}
	}

	payload, err := decoder.DecodeAll(buf[8:], make([]byte, 0, origSize))
	if err != nil {
		return nil, &CorruptionError{Reason: err.Error()}
	}

	if uint64(len(payload)) < origSize {
		return nil, &SizeMismatchError{Expected: int(origSize), Got: len(payload)}
	}

	return payload[:origSize], nil
}

// Hash returns the content address of an already-encoded buffer, without
// re-encoding it. Useful for verifying a buffer fetched from storage.
func Hash(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
