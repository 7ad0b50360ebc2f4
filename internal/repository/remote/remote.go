/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package remote implements the repository.Backend interface over SFTP,
// addressed as "user@host:/path".
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/knoxite-labs/backupcore/internal/repository"
)

// Address is a parsed "user@host:/path" remote repository address.
type Address struct {
	User string
	Host string
	Path string
}

// ParseAddress parses a "user@host:/path" address.
func ParseAddress(addr string) (Address, error) {
	at := strings.Index(addr, "@")
	colon := strings.Index(addr, ":")
	if at <= 0 || colon <= at+1 {
		return Address{}, fmt.Errorf("remote: invalid address %q, expected user@host:/path", addr)
	}
	return Address{
		User: addr[:at],
		Host: addr[at+1 : colon],
		Path: addr[colon+1:],
	}, nil
}

// Backend stores a repository on a remote host reachable over SFTP.
type Backend struct {
	Addr   Address
	client *sftp.Client
	conn   *ssh.Client
}

// Dial opens an SSH+SFTP session to addr on port 22, authenticating with
// the auth methods in sshConfig. It does not consult an SSH agent.
func Dial(addr Address, sshConfig *ssh.ClientConfig) (*Backend, error) {
	conn, err := ssh.Dial("tcp", addr.Host+":22", sshConfig)
	if err != nil {
		return nil, fmt.Errorf("remote: ssh dial: %w", err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: sftp client: %w", err)
	}

	return &Backend{Addr: addr, client: client, conn: conn}, nil
}

// Close releases the underlying SFTP/SSH connection.
func (b *Backend) Close() error {
	var err error
	if b.client != nil {
		err = b.client.Close()
	}
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (b *Backend) abs(rel string) string {
	return filepath.Join(b.Addr.Path, rel)
}

// Exists implements repository.Backend.
func (b *Backend) Exists(ctx context.Context) (bool, error) {
	return b.PathExists(ctx, "config.json")
}

// Initialize implements repository.Backend.
func (b *Backend) Initialize(ctx context.Context, cfg repository.Config) error {
	if err := b.client.MkdirAll(b.Addr.Path); err != nil {
		return err
	}
	if err := b.client.MkdirAll(b.abs("backup")); err != nil {
		return err
	}
	for i := 0; i < 256; i++ {
		if err := b.client.MkdirAll(b.abs(filepath.Join("chunks", fmt.Sprintf("%02x", i)))); err != nil {
			return err
		}
	}
	return b.WriteConfig(ctx, cfg)
}

// Delete implements repository.Backend.
func (b *Backend) Delete(ctx context.Context) error {
	walker := b.client.Walk(b.Addr.Path)
	var files, dirs []string
	for walker.Step() {
		if walker.Err() != nil {
			continue
		}
		if walker.Stat().IsDir() {
			dirs = append(dirs, walker.Path())
		} else {
			files = append(files, walker.Path())
		}
	}
	for _, f := range files {
		_ = b.client.Remove(f)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = b.client.RemoveDirectory(dirs[i])
	}
	return nil
}

// UploadFile implements repository.Backend.
func (b *Backend) UploadFile(ctx context.Context, localPath, remoteDir string) error {
	dst := b.abs(filepath.Join(remoteDir, filepath.Base(localPath)))
	if err := b.client.MkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}
	return b.upload(localPath, dst)
}

// UploadDirectory implements repository.Backend.
func (b *Backend) UploadDirectory(ctx context.Context, localDir, remoteDir string) error {
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		dst := b.abs(filepath.Join(remoteDir, rel))
		if info.IsDir() {
			return b.client.MkdirAll(dst)
		}
		if err := b.client.MkdirAll(filepath.Dir(dst)); err != nil {
			return err
		}
		return b.upload(path, dst)
	})
}

// DownloadFile implements repository.Backend.
func (b *Backend) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return b.download(b.abs(remotePath), localPath)
}

// DownloadDirectory implements repository.Backend.
func (b *Backend) DownloadDirectory(ctx context.Context, remoteDir, localDir string) error {
	root := b.abs(remoteDir)
	walker := b.client.Walk(root)
	for walker.Step() {
		if walker.Err() != nil {
			continue
		}
		rel, err := filepath.Rel(root, walker.Path())
		if err != nil {
			return err
		}
		dst := filepath.Join(localDir, rel)
		if walker.Stat().IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := b.download(walker.Path(), dst); err != nil {
			return err
		}
	}
	return nil
}

// List implements repository.Backend.
func (b *Backend) List(ctx context.Context, remoteDir string) ([]string, error) {
	infos, err := b.client.ReadDir(b.abs(remoteDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names, nil
}

// PathExists implements repository.Backend.
func (b *Backend) PathExists(ctx context.Context, remotePath string) (bool, error) {
	_, err := b.client.Stat(b.abs(remotePath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// WriteConfig implements repository.Backend.
func (b *Backend) WriteConfig(ctx context.Context, cfg repository.Config) error {
	data, err := repository.MarshalConfig(cfg)
	if err != nil {
		return err
	}
	f, err := b.client.Create(b.abs("config.json"))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// ReadConfig implements repository.Backend.
func (b *Backend) ReadConfig(ctx context.Context) (repository.Config, error) {
	f, err := b.client.Open(b.abs("config.json"))
	if err != nil {
		return repository.Config{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return repository.Config{}, err
	}
	return repository.UnmarshalConfig(data)
}

func (b *Backend) upload(localPath, remotePath string) error {
	in, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := remotePath + ".tmp"
	out, err := b.client.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		b.client.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		b.client.Remove(tmp)
		return err
	}

	return b.client.Rename(tmp, remotePath)
}

func (b *Backend) download(remotePath, localPath string) error {
	in, err := b.client.Open(remotePath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
