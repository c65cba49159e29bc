package logging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultBufferSize = 500

// Entry is a captured log line.
type Entry struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Buffer is a logrus hook that keeps the most recent entries in a ring.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	head    int
	count   int
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{entries: make([]Entry, size), size: size}
}

func (b *Buffer) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (b *Buffer) Fire(entry *logrus.Entry) error {
	e := Entry{Time: entry.Time, Level: entry.Level.String(), Message: entry.Message}
	if len(entry.Data) > 0 {
		e.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			e.Fields[k] = v
		}
	}
	b.Push(e)
	return nil
}

// Push adds an entry, overwriting the oldest when full.
func (b *Buffer) Push(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = e
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Recent returns up to n entries, oldest first. n <= 0 returns everything.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]Entry, 0, n)
	start := (b.head - n + b.size) % b.size
	for i := 0; i < n; i++ {
		out = append(out, b.entries[(start+i)%b.size])
	}
	return out
}
