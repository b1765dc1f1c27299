package model

import "path/filepath"

// EsResultDocument 定义了存储在 Elasticsearch 中的转换结果文档结构。
type EsResultDocument struct {
	ResultID           string    `json:"result_id"`
	BatchID            string    `json:"batch_id"`
	InputFilePath      string    `json:"input_file_path"`
	InputFileName      string    `json:"input_file_name"`
	OutputDirectory    string    `json:"output_directory"`
	IsSuccess          bool      `json:"is_success"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	StartTime          LocalTime `json:"start_time"`
	EndTime            LocalTime `json:"end_time"`
	DurationMs         int64     `json:"duration_ms"`
	InputFileSizeBytes int64     `json:"input_file_size_bytes"`
	OutputFileCount    int       `json:"output_file_count"`
}

// NewEsResultDocument 根据转换结果构造索引文档。
func NewEsResultDocument(batchID string, r *ConversionResult) EsResultDocument {
	return EsResultDocument{
		ResultID:           r.ID,
		BatchID:            batchID,
		InputFilePath:      r.InputFilePath,
		InputFileName:      filepath.Base(r.InputFilePath),
		OutputDirectory:    r.OutputDirectory,
		IsSuccess:          r.IsSuccess,
		ErrorMessage:       r.ErrorMessage,
		StartTime:          LocalTime(r.StartTime),
		EndTime:            LocalTime(r.EndTime),
		DurationMs:         r.DurationMs,
		InputFileSizeBytes: r.InputFileSizeBytes,
		OutputFileCount:    len(r.OutputFiles),
	}
}
