package pipeline

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"pcconv-go/internal/model"
)

// copyBufferSize 是分块拷贝时每次读取的缓冲区大小。
const copyBufferSize = 80 * 1024

// ExtractChunk 把 sourcePath 中 [chunk.StartByte, chunk.EndByte] 的字节写入 chunk.TempFilePath。
// 源文件提前结束不算错误，拷贝到 EOF 为止。临时文件由调用方负责删除。
func ExtractChunk(sourcePath string, chunk model.FileChunk) (int64, error) {
	if chunk.TempFilePath == "" {
		return 0, ioFailure("extract chunk "+chunk.ID, errors.New("temp file path is empty"))
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, notFoundf("source file %s", sourcePath)
		}
		return 0, ioFailure("open source", err)
	}
	defer src.Close()

	if _, err := src.Seek(chunk.StartByte, io.SeekStart); err != nil {
		return 0, ioFailure("seek source", err)
	}

	if err := os.MkdirAll(filepath.Dir(chunk.TempFilePath), 0755); err != nil {
		return 0, ioFailure("create temp directory", err)
	}
	dst, err := os.Create(chunk.TempFilePath)
	if err != nil {
		return 0, ioFailure("create temp file", err)
	}

	buf := make([]byte, copyBufferSize)
	written, copyErr := io.CopyBuffer(dst, io.LimitReader(src, chunk.Size()), buf)
	closeErr := dst.Close()
	if copyErr != nil {
		return written, ioFailure("copy chunk "+chunk.ID, copyErr)
	}
	if closeErr != nil {
		return written, ioFailure("close temp file", closeErr)
	}
	return written, nil
}
