package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversionResult_Finalize(t *testing.T) {
	start := time.Now()

	ok := &ConversionResult{StartTime: start}
	ok.Finalize(start.Add(1500*time.Millisecond), nil)
	assert.True(t, ok.IsSuccess)
	assert.Empty(t, ok.ErrorMessage)
	assert.Equal(t, int64(1500), ok.DurationMs)
	assert.Equal(t, 1500*time.Millisecond, ok.Duration())

	failed := &ConversionResult{StartTime: start}
	failed.Finalize(start.Add(-time.Second), errors.New("boom"))
	assert.False(t, failed.IsSuccess)
	assert.Equal(t, "boom", failed.ErrorMessage)
	assert.Equal(t, start, failed.EndTime)
	assert.Zero(t, failed.Duration())
}

func TestConversionResult_DurationUnfinished(t *testing.T) {
	r := &ConversionResult{StartTime: time.Now()}
	assert.Zero(t, r.Duration())
}

func TestConversionResult_JSONFields(t *testing.T) {
	r := &ConversionResult{ID: "x", OutputFiles: []string{"a"}}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"id", "inputFilePath", "outputDirectory", "isSuccess", "errorMessage",
		"startTime", "endTime", "durationMs", "inputFileSizeBytes", "outputFiles"} {
		assert.Contains(t, fields, key)
	}
}

func TestFileChunk(t *testing.T) {
	c := FileChunk{StartByte: 100, EndByte: 199}
	assert.Equal(t, int64(100), c.Size())
	assert.Equal(t, "000", ChunkID(0))
	assert.Equal(t, "012", ChunkID(12))
}

func TestBatchReportAndRecords(t *testing.T) {
	start := time.Now()
	ok := &ConversionResult{ID: "a", StartTime: start, OutputFiles: []string{"/out/a/cloud.js"}}
	ok.Finalize(start.Add(time.Second), nil)
	bad := &ConversionResult{ID: "b", StartTime: start}
	bad.Finalize(start.Add(time.Second), errors.New("exit 1"))

	report := NewBatchReport("batch", start, start.Add(3*time.Second), []*ConversionResult{ok, bad})
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int64(3000), report.DurationMs)

	rec, err := NewConversionRecord("batch", 0, ok)
	require.NoError(t, err)
	back, err := rec.ToResult()
	require.NoError(t, err)
	assert.Equal(t, ok.OutputFiles, back.OutputFiles)
	assert.Equal(t, ok.ID, back.ID)
	assert.True(t, back.IsSuccess)
}

func TestLocalTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local)
	data, err := json.Marshal(LocalTime(ts))
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01 13:04:05"`, string(data))

	var back LocalTime
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, ts.Equal(time.Time(back)))
}
