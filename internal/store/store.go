/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package store persists content-addressed chunks through a
// repository.Backend, under a two-level hash-prefix layout, with
// write-once deduplication: a chunk already present at its address is
// never re-uploaded or overwritten.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/reedsolomon"

	"github.com/knoxite-labs/backupcore/internal/codec"
	"github.com/knoxite-labs/backupcore/internal/repository"
)

// ChunkMissingError is returned by Get when the referenced chunk does not
// exist in the backing repository.
type ChunkMissingError struct {
	Hash string
}

func (e *ChunkMissingError) Error() string {
	return fmt.Sprintf("store: chunk %s missing", e.Hash)
}

// Store puts and fetches encoded chunks through a repository.Backend.
type Store struct {
	backend repository.Backend
	tempDir string
}

// New returns a Store that stages writes under tempDir before uploading
// through backend.
func New(backend repository.Backend, tempDir string) *Store {
	return &Store{backend: backend, tempDir: tempDir}
}

func chunkPath(hash string) string {
	return filepath.Join("chunks", hash[:2], hash+".chunk")
}

// Put uploads an already-encoded chunk under its content address, skipping
// the upload entirely if a chunk at that address already exists (dedup
// hit). Returns true if the chunk was newly written, false on a dedup hit.
func (s *Store) Put(ctx context.Context, chunk codec.EncodedChunk) (wrote bool, err error) {
	dst := chunkPath(chunk.Hash)

	exists, err := s.backend.PathExists(ctx, dst)
	if err != nil {
		return false, fmt.Errorf("store: checking existence of %s: %w", chunk.Hash, err)
	}
	if exists {
		return false, nil
	}

	tmp := filepath.Join(s.tempDir, chunk.Hash+".chunk")
	if err := os.WriteFile(tmp, chunk.Bytes, 0644); err != nil {
		return false, fmt.Errorf("store: staging %s: %w", chunk.Hash, err)
	}
	defer os.Remove(tmp)

	if err := s.backend.UploadFile(ctx, tmp, filepath.Dir(dst)); err != nil {
		return false, fmt.Errorf("store: uploading %s: %w", chunk.Hash, err)
	}
	return true, nil
}

// Get fetches and decodes the chunk at hash, returning its decompressed
// payload.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	exists, err := s.backend.PathExists(ctx, chunkPath(hash))
	if err != nil {
		return nil, fmt.Errorf("store: checking existence of %s: %w", hash, err)
	}
	if !exists {
		return nil, &ChunkMissingError{Hash: hash}
	}

	tmp := filepath.Join(s.tempDir, hash+".get")
	defer os.Remove(tmp)

	if err := s.backend.DownloadFile(ctx, chunkPath(hash), tmp); err != nil {
		return nil, fmt.Errorf("store: downloading %s: %w", hash, err)
	}

	raw, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("store: reading staged %s: %w", hash, err)
	}

	if got := codec.Hash(raw); got != hash {
		return nil, fmt.Errorf("store: %s: %w", hash, &codec.CorruptionError{Reason: fmt.Sprintf("content address mismatch: expected %s, got %s", hash, got)})
	}

	payload, err := codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("store: decoding %s: %w", hash, err)
	}
	return payload, nil
}

// Exists reports whether a chunk at hash is already present in the backend,
// without fetching it.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	return s.backend.PathExists(ctx, chunkPath(hash))
}

// ShardSet is the result of a parity-protected Put: DataParts content
// shards plus ParityParts reed-solomon parity shards, each uploaded as its
// own addressed object. With ParityParts == 0, PutWithParity degrades to a
// plain Put and returns a set holding only the chunk's own hash.
type ShardSet struct {
	DataParts   int
	ParityParts int
	ShardHashes []string
	// EncodedSize is the exact byte length of the original encoded chunk,
	// needed to strip the reed-solomon padding each data shard is rounded
	// up to before decoding.
	EncodedSize int
}

// PutWithParity splits an already-encoded chunk into DataParts
// reed-solomon data shards plus ParityParts parity shards and stores each
// shard individually, so the chunk survives the loss of up to ParityParts
// shards. With parityParts == 0 it is equivalent to Put.
func (s *Store) PutWithParity(ctx context.Context, chunk codec.EncodedChunk, dataParts, parityParts int) (ShardSet, error) {
	if parityParts == 0 {
		wrote, err := s.Put(ctx, chunk)
		_ = wrote
		return ShardSet{DataParts: 1, ParityParts: 0, ShardHashes: []string{chunk.Hash}, EncodedSize: len(chunk.Bytes)}, err
	}

	enc, err := reedsolomon.New(dataParts, parityParts)
	if err != nil {
		return ShardSet{}, fmt.Errorf("store: constructing reedsolomon encoder: %w", err)
	}

	shards, err := enc.Split(chunk.Bytes)
	if err != nil {
		return ShardSet{}, fmt.Errorf("store: splitting chunk %s: %w", chunk.Hash, err)
	}
	if err := enc.Encode(shards); err != nil {
		return ShardSet{}, fmt.Errorf("store: encoding parity for %s: %w", chunk.Hash, err)
	}

	hashes := make([]string, len(shards))
	for i, shard := range shards {
		shardHash := codec.Hash(shard)
		hashes[i] = shardHash

		if _, err := s.Put(ctx, codec.EncodedChunk{Bytes: shard, Hash: shardHash}); err != nil {
			return ShardSet{}, fmt.Errorf("store: storing shard %d of %s: %w", i, chunk.Hash, err)
		}
	}

	return ShardSet{DataParts: dataParts, ParityParts: parityParts, ShardHashes: hashes, EncodedSize: len(chunk.Bytes)}, nil
}

// GetWithParity reassembles a chunk from a ShardSet, reconstructing up to
// ParityParts missing shards via reed-solomon before decoding. A set with
// ParityParts == 0 is read through Get.
func (s *Store) GetWithParity(ctx context.Context, set ShardSet) ([]byte, error) {
	if set.ParityParts == 0 {
		if len(set.ShardHashes) != 1 {
			return nil, fmt.Errorf("store: malformed unprotected shard set")
		}
		return s.Get(ctx, set.ShardHashes[0])
	}

	enc, err := reedsolomon.New(set.DataParts, set.ParityParts)
	if err != nil {
		return nil, fmt.Errorf("store: constructing reedsolomon decoder: %w", err)
	}

	shards := make([][]byte, len(set.ShardHashes))
	for i, hash := range set.ShardHashes {
		shard, err := s.getRawShard(ctx, hash)
		if err != nil {
			shards[i] = nil // missing shard: leave nil for reedsolomon to reconstruct
			continue
		}
		shards[i] = shard
	}

	if err := enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("store: reconstructing shards: %w", err)
	}

	var buf []byte
	for _, shard := range shards[:set.DataParts] {
		buf = append(buf, shard...)
	}
	if set.EncodedSize > 0 && set.EncodedSize <= len(buf) {
		buf = buf[:set.EncodedSize]
	}
	return codec.Decode(buf)
}

func (s *Store) getRawShard(ctx context.Context, hash string) ([]byte, error) {
	exists, err := s.backend.PathExists(ctx, chunkPath(hash))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &ChunkMissingError{Hash: hash}
	}

	tmp := filepath.Join(s.tempDir, hash+".shard")
	defer os.Remove(tmp)

	if err := s.backend.DownloadFile(ctx, chunkPath(hash), tmp); err != nil {
		return nil, err
	}
	return os.ReadFile(tmp)
}
