/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package dial

import (
	"errors"
	"testing"

	"github.com/knoxite-labs/backupcore/internal/repository"
	"github.com/knoxite-labs/backupcore/internal/repository/local"
)

func TestOpenLocal(t *testing.T) {
	b, err := Open("file:///tmp/myrepo", "", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lb, ok := b.(*local.Backend)
	if !ok {
		t.Fatalf("expected *local.Backend, got %T", b)
	}
	if lb.Root != "/tmp/myrepo" {
		t.Errorf("Root = %q", lb.Root)
	}
}

func TestOpenNoScheme(t *testing.T) {
	b, err := Open("/tmp/myrepo", "", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := b.(*local.Backend); !ok {
		t.Fatalf("expected *local.Backend, got %T", b)
	}
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := Open("ftp://example.com/repo", "", nil)
	if !errors.Is(err, repository.ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
}
