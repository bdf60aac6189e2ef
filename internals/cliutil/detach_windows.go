//go:build windows

package cliutil

import "os/exec"

func detachCmd(cmd *exec.Cmd) {}
