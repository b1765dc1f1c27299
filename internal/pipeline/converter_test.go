package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConverter 写出一个模拟转换程序的 shell 脚本。
func fakeConverter(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "converter.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

type lineRecorder struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (r *lineRecorder) handle(stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines == nil {
		r.lines = make(map[string][]string)
	}
	r.lines[stream] = append(r.lines[stream], line)
}

func TestExecInvoker_Success(t *testing.T) {
	script := fakeConverter(t, `
echo "converting $1"
mkdir -p "$3"
echo data > "$3/cloud.bin"
echo "done" >&2
exit 0`)
	out := filepath.Join(t.TempDir(), "out")

	rec := &lineRecorder{}
	err := NewExecInvoker(script, 0).Run(context.Background(), "/data/in.las", out, rec.handle)
	require.NoError(t, err)

	assert.Equal(t, []string{"converting /data/in.las"}, rec.lines["stdout"])
	assert.Equal(t, []string{"done"}, rec.lines["stderr"])
	assert.FileExists(t, filepath.Join(out, "cloud.bin"))
}

func TestExecInvoker_PassesArguments(t *testing.T) {
	script := fakeConverter(t, `echo "$1|$2|$3|$4"`)

	rec := &lineRecorder{}
	err := NewExecInvoker(script, 0).Run(context.Background(), "in.las", "outdir", rec.handle)
	require.NoError(t, err)
	assert.Equal(t, []string{"in.las|-o|outdir|--overwrite"}, rec.lines["stdout"])
}

func TestExecInvoker_NonZeroExit(t *testing.T) {
	script := fakeConverter(t, `
echo "reading header"
echo "invalid LAS header" >&2
exit 3`)

	err := NewExecInvoker(script, 0).Run(context.Background(), "in.las", t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessFailure)

	var procErr *ProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, 3, procErr.ExitCode)
	assert.Contains(t, procErr.Stdout, "reading header")
	assert.Contains(t, procErr.Stderr, "invalid LAS header")
	assert.Contains(t, err.Error(), "code 3")
}

func TestExecInvoker_MissingBinary(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "PotreeConverter")

	err := NewExecInvoker(missing, 0).Run(context.Background(), "in.las", t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecInvoker_Timeout(t *testing.T) {
	script := fakeConverter(t, `exec sleep 5`)

	start := time.Now()
	err := NewExecInvoker(script, 200*time.Millisecond).Run(context.Background(), "in.las", t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrProcessFailure)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecInvoker_TimeoutKillsChildProcesses(t *testing.T) {
	// sleep 作为子进程运行，并继承了输出管道
	script := fakeConverter(t, `
echo "started"
sleep 4
exit 0`)

	rec := &lineRecorder{}
	start := time.Now()
	err := NewExecInvoker(script, 200*time.Millisecond).Run(context.Background(), "in.las", t.TempDir(), rec.handle)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrProcessFailure)
	assert.Less(t, time.Since(start), 3*time.Second)

	var procErr *ProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Contains(t, procErr.Stdout, "started")
}

func TestExecInvoker_CancelKillsChildProcesses(t *testing.T) {
	script := fakeConverter(t, `
sleep 4 &
wait
exit 0`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	err := NewExecInvoker(script, 0).Run(ctx, "in.las", t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecInvoker_UnterminatedLastLine(t *testing.T) {
	script := fakeConverter(t, `printf "first\nlast"`)

	rec := &lineRecorder{}
	err := NewExecInvoker(script, 0).Run(context.Background(), "in.las", t.TempDir(), rec.handle)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "last"}, rec.lines["stdout"])
}

func TestCheckConverter(t *testing.T) {
	script := fakeConverter(t, `exit 0`)
	assert.NoError(t, CheckConverter(script))

	err := CheckConverter("")
	assert.ErrorIs(t, err, ErrConfiguration)

	err = CheckConverter(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "converter not found")

	err = CheckConverter(t.TempDir())
	assert.ErrorIs(t, err, ErrConfiguration)
}
