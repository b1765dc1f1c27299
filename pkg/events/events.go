// Package events 定义了发送到 Kafka 的转换事件结构。
package events

import (
	"path/filepath"
	"time"

	"pcconv-go/internal/model"
)

// 事件类型
const (
	TypeBatchStarted  = "batch_started"
	TypeFileFinished  = "file_finished"
	TypeBatchFinished = "batch_finished"
)

// ConversionEvent 是一条批处理生命周期事件，以 JSON 形式写入消息体，BatchID 作为消息 key。
type ConversionEvent struct {
	Type            string    `json:"type"`
	BatchID         string    `json:"batch_id"`
	ResultID        string    `json:"result_id,omitempty"`
	FileName        string    `json:"file_name,omitempty"`
	IsSuccess       bool      `json:"is_success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	OutputFileCount int       `json:"output_file_count,omitempty"`
	Total           int       `json:"total,omitempty"`
	Succeeded       int       `json:"succeeded,omitempty"`
	Failed          int       `json:"failed,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// BatchStarted 构造批次开始事件。
func BatchStarted(batchID string, total int) ConversionEvent {
	return ConversionEvent{Type: TypeBatchStarted, BatchID: batchID, Total: total, IsSuccess: true, Timestamp: time.Now()}
}

// FileFinished 根据单个文件的结果构造事件。
func FileFinished(batchID string, r *model.ConversionResult) ConversionEvent {
	return ConversionEvent{
		Type:            TypeFileFinished,
		BatchID:         batchID,
		ResultID:        r.ID,
		FileName:        filepath.Base(r.InputFilePath),
		IsSuccess:       r.IsSuccess,
		ErrorMessage:    r.ErrorMessage,
		DurationMs:      r.DurationMs,
		OutputFileCount: len(r.OutputFiles),
		Timestamp:       r.EndTime,
	}
}

// BatchFinished 根据批次报告构造结束事件，全部成功时 IsSuccess 为 true。
func BatchFinished(report *model.BatchReport) ConversionEvent {
	return ConversionEvent{
		Type:       TypeBatchFinished,
		BatchID:    report.BatchID,
		IsSuccess:  report.Failed == 0,
		DurationMs: report.DurationMs,
		Total:      report.Total,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Timestamp:  report.EndTime,
	}
}
