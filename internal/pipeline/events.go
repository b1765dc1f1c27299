package pipeline

import (
	"time"

	"pcconv-go/internal/model"
)

// EventType 标识流水线事件的种类。
type EventType string

const (
	EventUnitStarted  EventType = "unit_started"
	EventChunkStarted EventType = "chunk_started"
	EventOutput       EventType = "converter_output"
	EventUnitFinished EventType = "unit_finished"
)

// Event 是流水线对外广播的进度事件。并发的转换单元会同时产生事件，
// 实现 Notifier 的类型必须是并发安全的。
type Event struct {
	Type       EventType               `json:"type"`
	ResultID   string                  `json:"resultId"`
	InputFile  string                  `json:"inputFile"`
	ChunkID    string                  `json:"chunkId,omitempty"`
	ChunkTotal int                     `json:"chunkTotal,omitempty"`
	Stream     string                  `json:"stream,omitempty"`
	Line       string                  `json:"line,omitempty"`
	Result     *model.ConversionResult `json:"result,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Notifier 接收流水线事件。
type Notifier interface {
	Notify(Event)
}

// NotifierFunc 让普通函数实现 Notifier。
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// MultiNotifier 把事件依次转发给多个 Notifier，nil 会被忽略。
func MultiNotifier(notifiers ...Notifier) Notifier {
	list := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	if len(list) == 0 {
		return nopNotifier{}
	}
	return NotifierFunc(func(e Event) {
		for _, n := range list {
			n.Notify(e)
		}
	})
}
