package model

import (
	"encoding/json"
	"time"
)

// BatchReport 汇总一次批处理的全部结果，Results 与输入顺序一致。
type BatchReport struct {
	BatchID    string    `json:"batchId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Unmatched  []string  `json:"unmatched,omitempty"`
	// ArtifactPath 是结果 JSON 文件的路径，写入失败时为空。
	ArtifactPath string              `json:"artifactPath,omitempty"`
	Results      []*ConversionResult `json:"results"`
	// Downloads 按结果 ID 列出输出文件的临时下载链接，只在启用对象存储时填写。
	Downloads map[string][]string `json:"downloads,omitempty"`
}

// NewBatchReport 根据结果列表计算汇总数据。
func NewBatchReport(batchID string, start, end time.Time, results []*ConversionResult) *BatchReport {
	report := &BatchReport{
		BatchID:   batchID,
		StartTime: start,
		EndTime:   end,
		Total:     len(results),
		Results:   results,
	}
	if end.After(start) {
		report.DurationMs = end.Sub(start).Milliseconds()
	}
	for _, r := range results {
		if r.IsSuccess {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

// BatchRecord 对应 conversion_batches 表。
type BatchRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	BatchID    string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"batchId"`
	Total      int       `gorm:"not null" json:"total"`
	Succeeded  int       `gorm:"not null" json:"succeeded"`
	Failed     int       `gorm:"not null" json:"failed"`
	StartTime  time.Time `gorm:"not null" json:"startTime"`
	EndTime    time.Time `gorm:"not null" json:"endTime"`
	DurationMs int64     `gorm:"not null" json:"durationMs"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (BatchRecord) TableName() string {
	return "conversion_batches"
}

// ConversionRecord 对应 conversion_results 表，OutputFiles 以 JSON 文本保存。
type ConversionRecord struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	BatchID            string    `gorm:"type:varchar(36);not null;index"`
	Position           int       `gorm:"not null"` // 在批次输入中的序号
	ResultID           string    `gorm:"type:varchar(36);not null;uniqueIndex"`
	InputFilePath      string    `gorm:"type:varchar(1024);not null"`
	OutputDirectory    string    `gorm:"type:varchar(1024)"`
	IsSuccess          bool      `gorm:"not null;default:false"`
	ErrorMessage       string    `gorm:"type:text"`
	StartTime          time.Time `gorm:"not null"`
	EndTime            time.Time `gorm:"not null"`
	DurationMs         int64     `gorm:"not null"`
	InputFileSizeBytes int64     `gorm:"not null"`
	OutputFiles        string    `gorm:"type:mediumtext"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ConversionRecord) TableName() string {
	return "conversion_results"
}

// NewConversionRecord 把内存中的结果转换为数据库记录。
func NewConversionRecord(batchID string, position int, r *ConversionResult) (*ConversionRecord, error) {
	files, err := json.Marshal(r.OutputFiles)
	if err != nil {
		return nil, err
	}
	return &ConversionRecord{
		BatchID:            batchID,
		Position:           position,
		ResultID:           r.ID,
		InputFilePath:      r.InputFilePath,
		OutputDirectory:    r.OutputDirectory,
		IsSuccess:          r.IsSuccess,
		ErrorMessage:       r.ErrorMessage,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		DurationMs:         r.DurationMs,
		InputFileSizeBytes: r.InputFileSizeBytes,
		OutputFiles:        string(files),
	}, nil
}

// ToResult 还原为 ConversionResult。
func (c *ConversionRecord) ToResult() (*ConversionResult, error) {
	var files []string
	if c.OutputFiles != "" {
		if err := json.Unmarshal([]byte(c.OutputFiles), &files); err != nil {
			return nil, err
		}
	}
	return &ConversionResult{
		ID:                 c.ResultID,
		InputFilePath:      c.InputFilePath,
		OutputDirectory:    c.OutputDirectory,
		IsSuccess:          c.IsSuccess,
		ErrorMessage:       c.ErrorMessage,
		StartTime:          c.StartTime,
		EndTime:            c.EndTime,
		DurationMs:         c.DurationMs,
		InputFileSizeBytes: c.InputFileSizeBytes,
		OutputFiles:        files,
	}, nil
}

// BatchProgress 是运行中批次的实时进度。
type BatchProgress struct {
	BatchID   string `json:"batchId"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Running   bool   `json:"running"`
}
