/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Package dial resolves a repository URL into a concrete repository.Backend.
// It lives apart from package repository itself because it imports every
// backend variant, and those variants import repository.Backend — putting
// the dispatcher in package repository would be an import cycle.
package dial

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/knoxite-labs/backupcore/internal/repository"
	"github.com/knoxite-labs/backupcore/internal/repository/local"
	"github.com/knoxite-labs/backupcore/internal/repository/nfs"
	"github.com/knoxite-labs/backupcore/internal/repository/remote"
	"github.com/knoxite-labs/backupcore/internal/repository/webdav"
)

// Open resolves addr into a Backend based on its URL scheme:
//
//	file:///path/to/repo           -> local
//	nfs://host:/export#repo-name   -> nfs (export mounted locally at mountPoint;
//	                                  repository name from the fragment, "repo" if absent)
//	sftp://user@host/path          -> remote
//	webdav://host/path             -> webdav (webdavs:// for HTTPS)
//
// mountPoint is only consulted for nfs:// addresses, and sshConfig only for
// sftp:// addresses.
func Open(addr, mountPoint string, sshConfig *ssh.ClientConfig) (repository.Backend, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("dial: invalid repository address %q: %w", addr, err)
	}

	switch u.Scheme {
	case "file", "":
		return local.New(u.Path), nil

	case "nfs":
		serverIP, exportPath, err := nfs.ParseAddress(u.Host + u.Path)
		if err != nil {
			return nil, err
		}
		name := strings.TrimPrefix(u.Fragment, "")
		if name == "" {
			name = "repo"
		}
		return nfs.New(serverIP, exportPath, mountPoint, name), nil

	case "sftp":
		user := "root"
		if u.User != nil {
			user = u.User.Username()
		}
		remoteAddr, err := remote.ParseAddress(fmt.Sprintf("%s@%s:%s", user, u.Host, u.Path))
		if err != nil {
			return nil, err
		}
		return remote.Dial(remoteAddr, sshConfig)

	case "webdav", "webdavs":
		user, password := "", ""
		if u.User != nil {
			user = u.User.Username()
			password, _ = u.User.Password()
		}
		base := fmt.Sprintf("%s://%s", httpScheme(u), u.Host)
		return webdav.New(base, user, password, u.Path), nil

	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnsupportedScheme, u.Scheme)
	}
}

// httpScheme picks the underlying transport scheme for a webdav:// address:
// "webdavs" opts into HTTPS, anything else defaults to HTTP.
func httpScheme(u *url.URL) string {
	if u.Scheme == "webdavs" {
		return "https"
	}
	return "http"
}
