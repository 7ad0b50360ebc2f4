/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package repository defines the storage backend abstraction the snapshot
// engine treats as opaque: something that can upload, download, list, and
// test existence of files and directories. Concrete variants live in the
// local, nfs, remote, and webdav subpackages.
package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nu7hatch/gouuid"
)

// Type identifies a concrete backend kind, as recorded in config.json.
type Type string

const (
	TypeLocal  Type = "local"
	TypeNFS    Type = "nfs"
	TypeRemote Type = "remote"
	TypeWebDAV Type = "webdav"
)

// ErrUnsupportedScheme is returned by dial.Open for a URL scheme no backend
// registers for.
var ErrUnsupportedScheme = errors.New("repository: unsupported backend scheme")

// Config is the persisted shape of config.json.
type Config struct {
	Name             string `json:"name"`
	Type             Type   `json:"type"`
	Path             string `json:"path"`
	CreatedAt        string `json:"created_at"`
	PasswordHash     string `json:"password_hash"`
	ServerIP         string `json:"server_ip,omitempty"`
	ServerBackupPath string `json:"server_backup_path,omitempty"`
}

// Backend is the capability set the snapshot/restore engines need from a
// storage target. Chunk immutability comes from the chunk store, which
// never uploads to a chunk path that already exists; UploadFile itself
// overwrites.
type Backend interface {
	// Exists reports whether the repository root is already initialized.
	Exists(ctx context.Context) (bool, error)
	// Initialize creates the repository root, config.json, and the empty
	// backup/ and chunks/ hierarchy.
	Initialize(ctx context.Context, cfg Config) error
	// Delete removes every file under the repository root, config.json
	// included.
	Delete(ctx context.Context) error
	// UploadFile copies localPath into remoteDir/ on the backend,
	// overwriting any existing file of the same name.
	UploadFile(ctx context.Context, localPath, remoteDir string) error
	// UploadDirectory recursively copies localDir's contents into
	// remoteDir/ on the backend.
	UploadDirectory(ctx context.Context, localDir, remoteDir string) error
	// DownloadFile fetches remotePath into localPath.
	DownloadFile(ctx context.Context, remotePath, localPath string) error
	// DownloadDirectory recursively fetches remoteDir into localDir.
	DownloadDirectory(ctx context.Context, remoteDir, localDir string) error
	// List returns the entries directly under remoteDir, not recursive.
	List(ctx context.Context, remoteDir string) ([]string, error)
	// PathExists reports whether a single file or directory exists on the
	// backend.
	PathExists(ctx context.Context, remotePath string) (bool, error)
	// WriteConfig serialises cfg to config.json at the repository root.
	WriteConfig(ctx context.Context, cfg Config) error
	// ReadConfig loads config.json from the repository root.
	ReadConfig(ctx context.Context) (Config, error)
}

// HashPassword returns the repository's hashed_password: the SHA-256 hex
// digest of the cleartext password, as stored in config.json. An empty
// password hashes to the empty string.
func HashPassword(password string) string {
	if password == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// NewConfig builds a Config for a freshly initialized repository. An empty
// name is replaced with a random UUID, so two repositories created without
// an explicit name never collide.
func NewConfig(name string, typ Type, path, password string) Config {
	if name == "" {
		if id, err := uuid.NewV4(); err == nil {
			name = id.String()
		}
	}
	return Config{
		Name:         name,
		Type:         typ,
		Path:         path,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		PasswordHash: HashPassword(password),
	}
}

// MarshalConfig renders cfg as the config.json document.
func MarshalConfig(cfg Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// UnmarshalConfig parses a config.json document.
func UnmarshalConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("repository: invalid config.json: %w", err)
	}
	if cfg.Name == "" || cfg.Type == "" {
		return Config{}, fmt.Errorf("repository: config.json missing required fields")
	}
	return cfg, nil
}
