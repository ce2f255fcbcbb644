package utils

import (
	"bytes"
	"io"
	"strconv"
	"sync"
	"time"
)

// LogInterceptor prefixes each complete line written to it with a sequence number and a
// timestamp before passing it to the target. A trailing partial line is held back until
// it is completed or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending bytes.Buffer
	now     func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

// Write reports len(p) on success so slog handlers do not treat the prefix as a short write.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		line, err := i.pending.ReadBytes('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			i.pending.Reset()
			i.pending.Write(line)
			return len(p), nil
		}
		if werr := i.writeLine(bytes.TrimRight(line, "\r\n")); werr != nil {
			return 0, werr
		}
	}
}

// Close flushes a pending partial line.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pending.Len() == 0 {
		return nil
	}
	line := bytes.Clone(i.pending.Bytes())
	i.pending.Reset()
	return i.writeLine(line)
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	var buf bytes.Buffer
	buf.WriteString("line=")
	buf.WriteString(strconv.FormatUint(i.seq, 10))
	buf.WriteString(" time=")
	buf.WriteString(i.now().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := i.target.Write(buf.Bytes())
	return err
}
