package pipeline

import "pcconv-go/internal/model"

const bytesPerMB int64 = 1024 * 1024

// ThresholdBytes 把以 MB 为单位的分块阈值换算成字节。
func ThresholdBytes(chunkThresholdMB int64) int64 {
	return chunkThresholdMB * bytesPerMB
}

// NeedsChunking 判断文件是否超过阈值（MB）。等于阈值时走直接转换。
func NeedsChunking(fileSizeBytes, chunkThresholdMB int64) bool {
	return fileSizeBytes > ThresholdBytes(chunkThresholdMB)
}

// PlanChunks 把 [0, fileSizeBytes) 按顺序切成不超过 chunkThresholdBytes 的连续区间。
// 纯函数，不做任何 I/O；TempFilePath 由调用方填写。
// 调用方应先用 NeedsChunking 判断，不超过阈值的文件不应进入这里。
func PlanChunks(fileSizeBytes, chunkThresholdBytes int64) []model.FileChunk {
	if fileSizeBytes <= 0 || chunkThresholdBytes <= 0 {
		return nil
	}
	count := (fileSizeBytes + chunkThresholdBytes - 1) / chunkThresholdBytes
	chunks := make([]model.FileChunk, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * chunkThresholdBytes
		end := start + chunkThresholdBytes - 1
		if end > fileSizeBytes-1 {
			end = fileSizeBytes - 1
		}
		chunks = append(chunks, model.FileChunk{
			ID:        model.ChunkID(int(i)),
			StartByte: start,
			EndByte:   end,
		})
	}
	return chunks
}
