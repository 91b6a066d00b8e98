//go:build !unix

// No flock here, so the file backend is unsupported: Read and Mutate fail with
// errs.ErrStorage and deployments must use the postgres backend.

package filestore

import (
	"errors"
	"os"
)

func lockShared(*os.File) error    { return errors.ErrUnsupported }
func lockExclusive(*os.File) error { return errors.ErrUnsupported }
func unlock(*os.File) error        { return nil }
