//go:build !unix && !windows

package storage

import "os"

// No advisory locking here; the in-process mutex still serializes callers
// that share a FileStore.
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
