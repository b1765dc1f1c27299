package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类。单个文件的失败都在 Processor 边界被捕获并写入结果，
// 只有 ErrConfiguration 会在批处理开始前终止整个运行。
var (
	ErrNotFound       = errors.New("not found")
	ErrIOFailure      = errors.New("io failure")
	ErrProcessFailure = errors.New("converter process failed")
	ErrConfiguration  = errors.New("configuration error")
)

// ProcessError 记录转换程序的非零退出码以及捕获到的全部输出。
type ProcessError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "converter exited with code %d", e.ExitCode)
	if s := strings.TrimSpace(e.Stdout); s != "" {
		b.WriteString("; stdout: ")
		b.WriteString(s)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString("; stderr: ")
		b.WriteString(s)
	}
	return b.String()
}

// Is 让 errors.Is(err, ErrProcessFailure) 对 *ProcessError 成立。
func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessFailure
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func ioFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}
