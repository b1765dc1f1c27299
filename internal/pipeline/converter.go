package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"pcconv-go/pkg/log"
)

// maxLineSize 是单行输出的上限，超过时按已读到的内容先输出一行。
const maxLineSize = 1024 * 1024

// waitDelay 是进程被杀或退出后等待输出管道关闭的最长时间。
const waitDelay = 2 * time.Second

// LineHandler 接收转换程序输出的每一行，stream 为 "stdout" 或 "stderr"。
type LineHandler func(stream, line string)

// Invoker 对单个输入（整个文件或一个分块）运行一次外部转换程序。
type Invoker interface {
	Run(ctx context.Context, inputPath, outputDir string, onLine LineHandler) error
}

// CheckConverter 在批处理开始前确认转换程序存在，只需调用一次。
func CheckConverter(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: converter path is not configured", ErrConfiguration)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: converter not found at %s", ErrConfiguration, path)
		}
		return fmt.Errorf("%w: cannot stat converter %s: %w", ErrConfiguration, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: converter path %s is a directory", ErrConfiguration, path)
	}
	return nil
}

// ConverterArgs 构造命令行参数：<input> -o <outputDir> --overwrite
func ConverterArgs(inputPath, outputDir string) []string {
	return []string{inputPath, "-o", outputDir, "--overwrite"}
}

// ExecInvoker 通过子进程调用转换程序。
type ExecInvoker struct {
	converterPath string
	timeout       time.Duration
}

// NewExecInvoker 创建一个 ExecInvoker。timeout 为 0 时不限制单次运行时长。
func NewExecInvoker(converterPath string, timeout time.Duration) *ExecInvoker {
	return &ExecInvoker{converterPath: converterPath, timeout: timeout}
}

// Run 启动转换程序并阻塞到其退出。stdout/stderr 在运行期间逐行读取，
// 退出码非 0 时返回 *ProcessError，其中包含全部捕获的输出。
// 超时或取消时整个进程组被杀掉，遗留的子进程不会让 Run 一直阻塞。
func (c *ExecInvoker) Run(ctx context.Context, inputPath, outputDir string, onLine LineHandler) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := ConverterArgs(inputPath, outputDir)
	cmd := exec.CommandContext(ctx, c.converterPath, args...)
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	stdout := newLineWriter("stdout", onLine)
	stderr := newLineWriter("stderr", onLine)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Infof("[Converter] 执行: %s %s", c.converterPath, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return notFoundf("converter not found: %s", c.converterPath)
		}
		return fmt.Errorf("%w: start converter: %w", ErrProcessFailure, err)
	}

	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()
	if waitErr == nil {
		return nil
	}

	procErr := &ProcessError{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	var exitErr *exec.ExitError
	isExit := errors.As(waitErr, &exitErr)
	if isExit {
		procErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("converter interrupted (%w): %w", ctxErr, procErr)
	}
	if isExit {
		return procErr
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// 转换程序已正常退出，只是残留的子进程还占着输出管道
		log.Warnf("[Converter] 转换程序已退出, 但输出管道在 %s 内未关闭", waitDelay)
		return nil
	}
	return fmt.Errorf("%w: wait for converter: %w", ErrProcessFailure, waitErr)
}

// lineWriter 把写入的字节按行切分，记录到缓冲区并转发给 onLine。
// exec 为每个流单独起一个拷贝 goroutine，同一个 lineWriter 不会被并发写入。
type lineWriter struct {
	stream  string
	onLine  LineHandler
	pending []byte
	buf     strings.Builder
}

func newLineWriter(stream string, onLine LineHandler) *lineWriter {
	return &lineWriter{stream: stream, onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) >= maxLineSize {
		w.emit(w.pending)
		w.pending = nil
	}
	return len(p), nil
}

// flush 输出最后一个没有换行符的行。
func (w *lineWriter) flush() {
	if len(w.pending) > 0 {
		w.emit(w.pending)
		w.pending = nil
	}
}

func (w *lineWriter) emit(raw []byte) {
	line := strings.TrimSuffix(string(raw), "\r")
	w.buf.WriteString(line)
	w.buf.WriteByte('\n')
	if w.stream == "stderr" {
		log.Warnf("[Converter] %s", line)
	} else {
		log.Infof("[Converter] %s", line)
	}
	if w.onLine != nil {
		w.onLine(w.stream, line)
	}
}

func (w *lineWriter) String() string {
	return w.buf.String()
}
