/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/knoxite-labs/backupcore/internal/repository"
	"github.com/knoxite-labs/backupcore/internal/repository/dial"
)

// dialRepo resolves repoAddr (the --repo flag) into a concrete backend,
// building an SSH client config that authenticates with sshPassword when
// the address is sftp://. SSH agent authentication is not used.
func dialRepo() (repository.Backend, error) {
	var sshConfig *ssh.ClientConfig
	if strings.HasPrefix(repoAddr, "sftp://") {
		user := "root"
		if u, err := url.Parse(repoAddr); err == nil && u.User != nil {
			user = u.User.Username()
		}
		sshConfig = &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.Password(sshPassword)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		}
	}

	backend, err := dial.Open(repoAddr, mountPointFor(repoAddr), sshConfig)
	if err != nil {
		return nil, fmt.Errorf("opening repository %q: %w", repoAddr, err)
	}
	return backend, nil
}

// mountPointFor returns a fresh scratch directory for nfs:// addresses,
// which the nfs backend mounts the export under.
func mountPointFor(addr string) string {
	if !strings.HasPrefix(addr, "nfs://") {
		return ""
	}
	dir, err := os.MkdirTemp("", "backupcore-nfs-")
	if err != nil {
		return ""
	}
	return dir
}
