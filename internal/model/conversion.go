// Package model 定义了转换流程中的数据结构。
package model

import (
	"fmt"
	"time"
)

// ConversionResult 记录单个输入文件的转换结果。
// 字段名和类型保持稳定，整个批次结果可以直接序列化为 JSON。
type ConversionResult struct {
	ID                 string    `json:"id"`
	InputFilePath      string    `json:"inputFilePath"`
	OutputDirectory    string    `json:"outputDirectory"`
	IsSuccess          bool      `json:"isSuccess"`
	ErrorMessage       string    `json:"errorMessage"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
	DurationMs         int64     `json:"durationMs"`
	InputFileSizeBytes int64     `json:"inputFileSizeBytes"`
	OutputFiles        []string  `json:"outputFiles"`
}

// Duration 返回处理耗时；未结束的结果返回 0。
func (r *ConversionResult) Duration() time.Duration {
	if r.EndTime.IsZero() || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Finalize 设置结束时间和最终状态。err 为 nil 表示成功。
func (r *ConversionResult) Finalize(end time.Time, err error) {
	if end.Before(r.StartTime) {
		end = r.StartTime
	}
	r.EndTime = end
	r.DurationMs = r.Duration().Milliseconds()
	if err != nil {
		r.IsSuccess = false
		r.ErrorMessage = err.Error()
		if r.ErrorMessage == "" {
			r.ErrorMessage = "unknown error"
		}
		return
	}
	r.IsSuccess = true
	r.ErrorMessage = ""
}

// FileChunk 描述大文件中的一个字节区间，只在一次转换内部存在。
type FileChunk struct {
	ID           string `json:"id"`
	StartByte    int64  `json:"startByte"`
	EndByte      int64  `json:"endByte"` // 包含
	TempFilePath string `json:"tempFilePath"`
}

// Size 返回区间字节数。
func (c FileChunk) Size() int64 {
	return c.EndByte - c.StartByte + 1
}

// ChunkID 按序号生成三位补零的分块编号，例如 000、001。
func ChunkID(index int) string {
	return fmt.Sprintf("%03d", index)
}
