//go:build !unix

package pipeline

import "os/exec"

// setProcessGroup 在不支持进程组的平台上保持默认行为，只杀掉直接子进程。
func setProcessGroup(*exec.Cmd) {}
