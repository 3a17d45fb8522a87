//go:build !unix

package backend

import "os/exec"

func setProcessGroup(_ *exec.Cmd) {}

func isKilledByTeardown(_ error) bool { return false }
