/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package restore implements the Restore/Verify Engine: it loads a
// snapshot, reconstructs files from their chunk lists through the chunk
// store, and can either write them to disk or discard the output while
// checking integrity.
//
// Unlike the decode path this is adapted from, nothing here is static or
// package-level: every restore call threads an explicit chunk cursor
// through the loop instead of relying on hidden function-local state.
package restore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knoxite-labs/backupcore/internal/codec"
	"github.com/knoxite-labs/backupcore/internal/metadata"
	"github.com/knoxite-labs/backupcore/internal/repository"
	"github.com/knoxite-labs/backupcore/internal/store"
)

// Status classifies the outcome of VerifyFile.
type Status int

const (
	Success Status = iota
	Corrupt
	Failed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Corrupt:
		return "Corrupt"
	default:
		return "Failed"
	}
}

// Failure records one file's restore or verify failure.
type Failure struct {
	Path string
	Err  error
}

// CompareResult is the four-way classification CompareBackups returns.
type CompareResult struct {
	Added     int
	Unchanged int
	Changed   int
	Deleted   int
}

// Engine loads and restores/verifies snapshots from a repository.
type Engine struct {
	backend  repository.Backend
	password string
	store    *store.Store
}

// New returns an Engine bound to backend, authenticated with password
// (empty means the repository's metadata is unencrypted).
func New(backend repository.Backend, password string, tempDir string) *Engine {
	return &Engine{
		backend:  backend,
		password: password,
		store:    store.New(backend, tempDir),
	}
}

// Load downloads and decodes a snapshot document by name.
func (e *Engine) Load(ctx context.Context, name, tempDir string) (metadata.Snapshot, error) {
	local := filepath.Join(tempDir, name)
	if err := e.backend.DownloadFile(ctx, filepath.Join("backup", name), local); err != nil {
		return metadata.Snapshot{}, fmt.Errorf("restore: downloading snapshot %s: %w", name, err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return metadata.Snapshot{}, fmt.Errorf("restore: reading staged snapshot %s: %w", name, err)
	}
	return metadata.Decode(data, e.password)
}

// outputPath derives the destination path for a snapshot key: the parent
// directory of pathKey, with a single leading slash stripped, joined under
// outputRoot, with the original filename appended.
func outputPath(outputRoot, pathKey string, entry metadata.FileEntry) string {
	parent := strings.TrimPrefix(filepath.Dir(pathKey), "/")
	return filepath.Join(outputRoot, parent, entry.OriginalFilename)
}

// RestoreFile reconstructs the single file at pathKey under outputRoot.
func (e *Engine) RestoreFile(ctx context.Context, snap metadata.Snapshot, pathKey, outputRoot string) error {
	entry, ok := snap.Files[pathKey]
	if !ok {
		return fmt.Errorf("restore: %s: no such entry in snapshot", pathKey)
	}

	dst := outputPath(outputRoot, pathKey, entry)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	if entry.IsSymlink {
		os.Remove(dst) // symlink creation fails if a stale target already exists
		if err := os.Symlink(entry.SymlinkTarget, dst); err != nil {
			return err
		}
		mtime := time.Unix(entry.Mtime, 0)
		return os.Chtimes(dst, mtime, mtime)
	}

	if err := e.writeChunks(ctx, entry, dst); err != nil {
		return err
	}

	mtime := time.Unix(entry.Mtime, 0)
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		return err
	}
	if perm, err := strconv.ParseUint(entry.Permissions, 8, 32); err == nil {
		os.Chmod(dst, os.FileMode(perm))
	}
	return nil
}

// writeChunks streams every chunk in entry.Chunks to dst in order, via an
// explicit cursor over the chunk list rather than any persistent package
// state, truncating the output to exactly entry.TotalSize bytes. Errors
// wrap the originating *store.ChunkMissingError or codec.CorruptionError
// with %w so callers can tell a missing chunk from an undecodable one.
func (e *Engine) writeChunks(ctx context.Context, entry metadata.FileEntry, dst string) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	var written uint64
	for cursor := 0; cursor < len(entry.Chunks); cursor++ {
		ref := entry.Chunks[cursor]

		payload, err := e.store.GetWithParity(ctx, store.ShardSet{
			DataParts:   ref.DataParts,
			ParityParts: ref.ParityParts,
			ShardHashes: ref.ShardHashes,
			EncodedSize: ref.EncodedSize,
		})
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %w", cursor+1, len(entry.Chunks), err)
		}

		remaining := entry.TotalSize - written
		if uint64(len(payload)) > remaining {
			payload = payload[:remaining]
		}

		n, err := out.Write(payload)
		if err != nil {
			return err
		}
		written += uint64(n)

		if written >= entry.TotalSize {
			break
		}
	}
	return nil
}

// RestoreAll restores every entry in snap under outputRoot, continuing past
// per-file failures and returning them as a list rather than aborting.
func (e *Engine) RestoreAll(ctx context.Context, snap metadata.Snapshot, outputRoot string) []Failure {
	var failures []Failure
	for path := range snap.Files {
		if err := e.RestoreFile(ctx, snap, path, outputRoot); err != nil {
			failures = append(failures, Failure{Path: path, Err: err})
		}
	}
	return failures
}

// VerifyFile reconstructs the file at pathKey into a scratch location under
// scratchDir, recomputes its whole-file SHA-256, and classifies the
// outcome.
func (e *Engine) VerifyFile(ctx context.Context, snap metadata.Snapshot, pathKey, scratchDir string) Status {
	entry, ok := snap.Files[pathKey]
	if !ok {
		return Failed
	}
	if entry.IsSymlink {
		return Success
	}

	scratch := filepath.Join(scratchDir, hex.EncodeToString([]byte(pathKey)))
	defer os.Remove(scratch)

	if err := e.writeChunks(ctx, entry, scratch); err != nil {
		var corrupt *codec.CorruptionError
		var sizeMismatch *codec.SizeMismatchError
		if errors.As(err, &corrupt) || errors.As(err, &sizeMismatch) {
			return Corrupt
		}
		return Failed
	}

	f, err := os.Open(scratch)
	if err != nil {
		return Failed
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return Corrupt
	}

	if hex.EncodeToString(sum.Sum(nil)) != entry.SHA256Checksum {
		return Corrupt
	}
	return Success
}

// CompareBackups classifies every key in b against a: added keys are in b
// but not a; changed keys differ in size or mtime; unchanged keys are
// identical; deleted keys are in a but absent from b.
func CompareBackups(a, b metadata.Snapshot) CompareResult {
	var result CompareResult
	for key, be := range b.Files {
		ae, ok := a.Files[key]
		switch {
		case !ok:
			result.Added++
		case ae.TotalSize != be.TotalSize || ae.Mtime != be.Mtime:
			result.Changed++
		default:
			result.Unchanged++
		}
	}
	for key := range a.Files {
		if _, ok := b.Files[key]; !ok {
			result.Deleted++
		}
	}
	return result
}
