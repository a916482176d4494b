//go:build !unix

package engine

import "os/exec"

func killProcessGroup(cmd *exec.Cmd) {}
