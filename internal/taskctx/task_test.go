package taskctx

import (
	"context"
	"path/filepath"
	"testing"
)

func TestTaskKeyIgnoresOrder(t *testing.T) {
	a := NewTask([]string{"https://b", "https://a"}, ModeLeech, Passthrough, ServiceAuto)
	b := NewTask([]string{"https://a", "https://b"}, ModeMirror, Zip, ServiceAuto)

	if a.Key() != b.Key() {
		t.Errorf("Expected identical keys for the same link set, got %q and %q", a.Key(), b.Key())
	}
	if a.ID == b.ID {
		t.Errorf("Expected distinct task ids")
	}
}

func TestParseProcessingMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ProcessingMode
		wantErr bool
	}{
		{"normal", Passthrough, false},
		{"", Passthrough, false},
		{"ZIP", Zip, false},
		{"unzip", Unzip, false},
		{"undzip", UnzipThenZip, false},
		{"both", Passthrough, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProcessingMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("dirleech"); err != nil || m != ModeDirLeech {
		t.Errorf("Expected dir-leech, got %v (%v)", m, err)
	}
	if _, err := ParseMode("upload"); err == nil {
		t.Errorf("Expected error for unknown mode")
	}
	if !ModeDirLeech.UploadsToChat() || ModeMirror.UploadsToChat() {
		t.Errorf("Unexpected UploadsToChat results")
	}
}

func TestServiceFlags(t *testing.T) {
	if !ServiceDebrid.RequiresFilenames() || ServiceNZB.RequiresFilenames() {
		t.Errorf("Unexpected RequiresFilenames results")
	}
	if !ServiceDirect.IsAuto() || !ServiceAuto.IsAuto() || ServiceYTDL.IsAuto() {
		t.Errorf("Unexpected IsAuto results")
	}
	if ServiceAuto.String() != "N/A" {
		t.Errorf("Expected N/A for auto service, got %s", ServiceAuto.String())
	}
}

func TestParseService(t *testing.T) {
	tests := []struct {
		in      string
		want    Service
		wantErr bool
	}{
		{"", ServiceAuto, false},
		{"auto", ServiceAuto, false},
		{"Debrid", ServiceDebrid, false},
		{"yt-dlp", ServiceYTDL, false},
		{"sabnzbd", ServiceNZB, false},
		{"jdownloader", ServiceJD, false},
		{"usenet", ServiceAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseService(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewPaths(t *testing.T) {
	p := NewPaths("/work", "/mirror")
	if p.Down != filepath.Join("/work", "Downloads") {
		t.Errorf("Unexpected down path %s", p.Down)
	}
	sub := p.WithDownSubdir("My Archive")
	if sub.Down != filepath.Join("/work", "Downloads", "My Archive") || p.Down == sub.Down {
		t.Errorf("Expected WithDownSubdir to return an adjusted copy, got %s", sub.Down)
	}
	if len(p.Scratch()) != 4 {
		t.Errorf("Expected 4 scratch dirs, got %d", len(p.Scratch()))
	}
}

func TestTaskContextCancelIsIdempotent(t *testing.T) {
	tc := New(NewTask([]string{"x"}, ModeLeech, Passthrough, ServiceAuto), NewPaths(t.TempDir(), ""), nil)
	ctx := tc.Bind(context.Background())

	tc.CancelByUser()
	tc.Cancel()

	if ctx.Err() == nil {
		t.Errorf("Expected bound context to be cancelled")
	}
	if !tc.CancelledByUser() {
		t.Errorf("Expected user cancellation to be recorded")
	}
	if !tc.MarkFinished() || tc.MarkFinished() {
		t.Errorf("Expected MarkFinished to succeed exactly once")
	}
}
