package model

// MergeMetadataFileName 是分块转换完成后写入结果目录的汇总文件名。
const MergeMetadataFileName = "merge_metadata.json"

// MergeMetadata 汇总一次分块转换，写入 <输出目录>/<id>/merge_metadata.json。
type MergeMetadata struct {
	ConversionID    string    `json:"conversionId"`
	SourceFile      string    `json:"sourceFile"`
	ChunkCount      int       `json:"chunkCount"`
	OutputFileCount int       `json:"outputFileCount"`
	MergedAt        LocalTime `json:"mergedAt"`
}
