//go:build !unix && !windows

package install

import "os"

// Platforms without advisory locks rely on the in-process serialization of
// the update manager only.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
