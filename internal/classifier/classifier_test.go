package classifier

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		link string
		want Kind
	}{
		{"absolute path", "/content/files/movie.mkv", KindLocal},
		{"home path", "~/Downloads", KindLocal},
		{"magnet", "magnet:?xt=urn:btih:c9e15763f722f23e98a29decdfae341b98d53056&dn=test", KindTorrent},
		{"torrent file url", "https://example.com/files/ubuntu.torrent?token=1", KindTorrent},
		{"gdrive file", "https://drive.google.com/file/d/1AbC_dEf-123/view", KindGDrive},
		{"telegram public", "https://t.me/somechannel/42", KindTelegram},
		{"telegram private", "https://t.me/c/1234567890/99", KindTelegram},
		{"telegram malformed", "https://t.me/somechannel/notanumber", KindUnrecognized},
		{"telegram.me host", "https://telegram.me/somechannel/42", KindTelegram},
		{"telegram www host", "https://www.t.me/somechannel/42", KindTelegram},
		{"host ending in t.me", "https://chat.me/files/video.mp4", KindDirect},
		{"host with t.me suffix", "https://somet.me/files/video.mp4", KindDirect},
		{"t.me in query", "https://cdn.example.com/dl/file.zip?src=t.me/abc", KindDirect},
		{"mega", "https://mega.nz/file/abc#key", KindMega},
		{"youtube", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", KindMedia},
		{"youtu.be", "https://youtu.be/dQw4w9WgXcQ", KindMedia},
		{"hls playlist", "https://cdn.example.com/live/index.m3u8", KindMedia},
		{"terabox", "https://www.terabox.com/s/1abcdef", KindTerabox},
		{"1024tera", "https://1024terabox.com/s/1abcdef", KindTerabox},
		{"plain http", "https://example.com/file.zip", KindDirect},
		{"garbage", "not a link", KindDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.link); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseTelegramLink(t *testing.T) {
	tests := []struct {
		name     string
		link     string
		wantChat string
		wantMsg  int
		wantErr  bool
	}{
		{"private channel", "https://t.me/c/1234567890/99", "-1001234567890", 99, false},
		{"public channel", "https://t.me/durov/150", "@durov", 150, false},
		{"topic message", "https://t.me/c/1234567890/5/77", "-1001234567890", 77, false},
		{"query stripped", "https://t.me/durov/150?single", "@durov", 150, false},
		{"non numeric message", "https://t.me/durov/abc", "", 0, true},
		{"non numeric chat", "https://t.me/c/abc/12", "", 0, true},
		{"missing message", "https://t.me/durov", "", 0, true},
		{"not telegram", "https://example.com/a/1", "", 0, true},
		{"t.me only in path", "https://example.com/t.me/durov/150", "", 0, true},
		{"lookalike host", "https://somet.me/durov/150", "", 0, true},
		{"telegram.me host", "https://telegram.me/durov/150", "@durov", 150, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseTelegramLink(tt.link)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %s, got %+v", tt.link, ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if ref.ChatString() != tt.wantChat {
				t.Errorf("Expected chat %s, got %s", tt.wantChat, ref.ChatString())
			}
			if ref.MessageID != tt.wantMsg {
				t.Errorf("Expected message %d, got %d", tt.wantMsg, ref.MessageID)
			}
		})
	}
}

func TestIsLink(t *testing.T) {
	valid := []string{"/srv/data", "~/x", "magnet:?xt=urn:btih:abc", "https://example.com/a", "ftp://host/file"}
	invalid := []string{"", "   ", "hello world", "example.com/a", "http://"}

	for _, s := range valid {
		if !IsLink(s) {
			t.Errorf("Expected %q to be a link", s)
		}
	}
	for _, s := range invalid {
		if IsLink(s) {
			t.Errorf("Expected %q not to be a link", s)
		}
	}
}

func TestKindIconAndString(t *testing.T) {
	if KindTorrent.String() != "torrent" {
		t.Errorf("Expected 'torrent', got '%s'", KindTorrent.String())
	}
	if KindDirect.Icon() == "" || KindTorrent.Icon() == KindDirect.Icon() {
		t.Errorf("Expected distinct non-empty icons")
	}
	if Kind(100).String() != "unknown" {
		t.Errorf("Expected 'unknown' for out-of-range kind")
	}
}
