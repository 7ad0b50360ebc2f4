/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/knoxite-labs/backupcore/internal/codec"
	"github.com/knoxite-labs/backupcore/internal/repository"
	"github.com/knoxite-labs/backupcore/internal/repository/local"
)

func newTestStore(t *testing.T) (*Store, repository.Backend) {
	t.Helper()
	root := t.TempDir()
	tmp := t.TempDir()

	backend := local.New(root)
	if err := backend.Initialize(context.Background(), repository.NewConfig("test", repository.TypeLocal, root, "")); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return New(backend, tmp), backend
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("hello world"), 1000)
	chunk, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wrote, err := s.Put(ctx, chunk)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !wrote {
		t.Errorf("expected first Put to write")
	}

	got, err := s.Get(ctx, chunk.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch")
	}
}

func TestPutDedup(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	payload := bytes.Repeat([]byte{0x42}, 4096)
	chunk, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wrote1, err := s.Put(ctx, chunk)
	if err != nil || !wrote1 {
		t.Fatalf("first Put: wrote=%v err=%v", wrote1, err)
	}
	wrote2, err := s.Put(ctx, chunk)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if wrote2 {
		t.Errorf("expected second Put of identical content to be a dedup hit")
	}

	names, err := backend.List(ctx, "chunks/"+chunk.Hash[:2])
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 {
		t.Errorf("expected exactly one chunk file, got %d: %v", len(names), names)
	}
}

func TestGetMissingChunk(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	var missing *ChunkMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected ChunkMissingError, got %v", err)
	}
}

func TestExists(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	chunk, err := codec.Encode([]byte("some data"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	exists, err := s.Exists(ctx, chunk.Hash)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Errorf("chunk should not exist before Put")
	}

	if _, err := s.Put(ctx, chunk); err != nil {
		t.Fatalf("Put: %v", err)
	}

	exists, err = s.Exists(ctx, chunk.Hash)
	if err != nil {
		t.Fatalf("Exists after Put: %v", err)
	}
	if !exists {
		t.Errorf("chunk should exist after Put")
	}
}

func TestPutWithParityRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("parity test payload "), 500)
	chunk, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	set, err := s.PutWithParity(ctx, chunk, 4, 2)
	if err != nil {
		t.Fatalf("PutWithParity: %v", err)
	}
	if len(set.ShardHashes) != 6 {
		t.Fatalf("expected 6 shards, got %d", len(set.ShardHashes))
	}

	got, err := s.GetWithParity(ctx, set)
	if err != nil {
		t.Fatalf("GetWithParity: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("parity round trip mismatch")
	}
}

func TestPutWithParityZeroDegradesToPlainPut(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	chunk, err := codec.Encode([]byte("no parity here"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	set, err := s.PutWithParity(ctx, chunk, 1, 0)
	if err != nil {
		t.Fatalf("PutWithParity: %v", err)
	}
	if set.ParityParts != 0 || len(set.ShardHashes) != 1 {
		t.Fatalf("unexpected shard set: %+v", set)
	}

	got, err := s.GetWithParity(ctx, set)
	if err != nil {
		t.Fatalf("GetWithParity: %v", err)
	}
	if string(got) != "no parity here" {
		t.Errorf("got %q", got)
	}
}
