// Package ledger holds the per-task bookkeeping shared by every stage: what
// was transferred and what failed. Both ledgers are append-only during a run
// and reset exactly once, when a task starts.
package ledger

import (
	"sync"
)

type DownloadRecord struct {
	URL      string
	Filename string
}

type SentFile struct {
	ChatID    int64
	MessageID int
	Name      string
	Size      int64
}

// Transfer records bytes moved and items completed.
type Transfer struct {
	mu sync.RWMutex

	downBytes  []int64
	upBytes    []int64
	totalSize  int64
	successful []DownloadRecord
	sent       []SentFile
}

func NewTransfer() *Transfer {
	return &Transfer{}
}

func (t *Transfer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downBytes = nil
	t.upBytes = nil
	t.totalSize = 0
	t.successful = nil
	t.sent = nil
}

// RecordDownload appends one byte entry and one success record together.
func (t *Transfer) RecordDownload(url, filename string, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downBytes = append(t.downBytes, size)
	t.successful = append(t.successful, DownloadRecord{URL: url, Filename: filename})
}

func (t *Transfer) RecordUpload(f SentFile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upBytes = append(t.upBytes, f.Size)
	t.sent = append(t.sent, f)
}

func (t *Transfer) SetTotalSize(size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalSize = size
}

func (t *Transfer) TotalSize() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSize
}

func (t *Transfer) DownloadedBytes() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sum(t.downBytes)
}

func (t *Transfer) UploadedBytes() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sum(t.upBytes)
}

func (t *Transfer) DownloadCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.downBytes)
}

// Successful returns a copy of the success records in completion order.
func (t *Transfer) Successful() []DownloadRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]DownloadRecord(nil), t.successful...)
}

func (t *Transfer) Sent() []SentFile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]SentFile(nil), t.sent...)
}

func (t *Transfer) SentNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.sent))
	for _, f := range t.sent {
		names = append(names, f.Name)
	}
	return names
}

func sum(values []int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}
