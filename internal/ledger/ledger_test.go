package ledger

import (
	"sync"
	"testing"
)

func TestTransfer_ResetClearsEverything(t *testing.T) {
	tr := NewTransfer()
	tr.RecordDownload("https://a", "a.bin", 100)
	tr.RecordUpload(SentFile{Name: "a.bin", Size: 100, MessageID: 7})
	tr.SetTotalSize(500)

	tr.Reset()

	if tr.DownloadCount() != 0 || len(tr.Successful()) != 0 {
		t.Errorf("Expected empty download lists after reset")
	}
	if tr.UploadedBytes() != 0 || len(tr.Sent()) != 0 {
		t.Errorf("Expected empty upload lists after reset")
	}
	if tr.TotalSize() != 0 {
		t.Errorf("Expected total size 0, got %d", tr.TotalSize())
	}
}

func TestTransfer_RecordDownloadAppendsPair(t *testing.T) {
	tr := NewTransfer()
	tr.RecordDownload("https://a", "a.bin", 100)
	tr.RecordDownload("https://c", "c.bin", 50)

	if tr.DownloadCount() != 2 {
		t.Errorf("Expected 2 byte entries, got %d", tr.DownloadCount())
	}
	succ := tr.Successful()
	if len(succ) != 2 || succ[1].Filename != "c.bin" {
		t.Errorf("Expected two success records in order, got %+v", succ)
	}
	if tr.DownloadedBytes() != 150 {
		t.Errorf("Expected 150 bytes, got %d", tr.DownloadedBytes())
	}
}

func TestTransfer_ConcurrentAppends(t *testing.T) {
	tr := NewTransfer()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordDownload("u", "f", 1)
			_ = tr.DownloadedBytes()
		}()
	}
	wg.Wait()

	if tr.DownloadCount() != 50 || len(tr.Successful()) != 50 {
		t.Errorf("Expected 50 paired entries, got %d/%d", tr.DownloadCount(), len(tr.Successful()))
	}
}

func TestTransfer_SentNames(t *testing.T) {
	tr := NewTransfer()
	tr.RecordUpload(SentFile{Name: "one.mkv", Size: 10})
	tr.RecordUpload(SentFile{Name: "two.mkv", Size: 20})

	names := tr.SentNames()
	if len(names) != 2 || names[0] != "one.mkv" || names[1] != "two.mkv" {
		t.Errorf("Unexpected sent names: %v", names)
	}
	if tr.UploadedBytes() != 30 {
		t.Errorf("Expected 30 uploaded bytes, got %d", tr.UploadedBytes())
	}
}

func TestErrors_FailAndClear(t *testing.T) {
	e := NewErrors()
	e.AddFailure(Failure{Link: "B", Filename: "b", Index: "2", Reason: "404"})
	e.Fail("One or more downloads failed/skipped in batch.")

	if !e.IsFatal() {
		t.Fatalf("Expected fatal flag to be set")
	}

	e.Clear()
	if e.IsFatal() || e.Message() != "" {
		t.Errorf("Expected flag and message cleared")
	}
	if e.FailureCount() != 1 {
		t.Errorf("Expected failure records to survive Clear, got %d", e.FailureCount())
	}
}

func TestErrors_SnapshotRestore(t *testing.T) {
	tests := []struct {
		name        string
		before      FatalState
		raiseDuring bool
		wantFatal   bool
		wantMessage string
	}{
		{"clean stays clean", FatalState{}, false, false, ""},
		{"fatal before survives", FatalState{Set: true, Message: "extract failed"}, false, true, "extract failed"},
		{"raised during is kept", FatalState{}, true, true, "batch failed"},
		{"prior message wins", FatalState{Set: true, Message: "extract failed"}, true, true, "extract failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewErrors()
			if tt.before.Set {
				e.Fail(tt.before.Message)
			}
			snap := e.Snapshot()
			e.Clear()
			if tt.raiseDuring {
				e.Fail("batch failed")
			}
			e.Restore(snap)

			if e.IsFatal() != tt.wantFatal {
				t.Errorf("Expected fatal %v, got %v", tt.wantFatal, e.IsFatal())
			}
			if e.Message() != tt.wantMessage {
				t.Errorf("Expected message '%s', got '%s'", tt.wantMessage, e.Message())
			}
		})
	}
}

func TestErrors_ResetAndFailedLinks(t *testing.T) {
	e := NewErrors()
	e.AddFailure(Failure{Link: "B", Index: OrdinalIndex(2), Reason: "404"})
	e.AddFailure(Failure{Link: "N/A", Index: UploadIndex, Reason: "Zero-byte file"})

	links := e.FailedLinks()
	if !links["B"] || links["N/A"] || len(links) != 1 {
		t.Errorf("Unexpected failed links: %v", links)
	}

	e.Fail("x")
	e.Reset()
	if e.IsFatal() || e.FailureCount() != 0 {
		t.Errorf("Expected empty ledger after reset")
	}
}
