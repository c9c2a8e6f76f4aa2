package downloader

import (
	"errors"
	"testing"

	"github.com/lrstanley/go-ytdlp"
)

func TestToEvent(t *testing.T) {
	name := "/downloads/abc-Clip.mp4"

	ev, ok := toEvent(&ytdlp.ProgressUpdate{
		Status:          ytdlp.ProgressStatusDownloading,
		TotalBytes:      200,
		DownloadedBytes: 84,
		Info:            &ytdlp.ExtractedInfo{Filename: &name},
	})
	if !ok {
		t.Fatalf("expected downloading update to map to an event")
	}
	if ev.Phase != PhaseDownloading || ev.Percent != "42.0%" || ev.Filename != "abc-Clip.mp4" {
		t.Fatalf("unexpected event %#v", ev)
	}

	ev, ok = toEvent(&ytdlp.ProgressUpdate{Status: ytdlp.ProgressStatusFinished})
	if !ok || ev.Phase != PhaseFinished {
		t.Fatalf("expected finished event, got %#v ok=%v", ev, ok)
	}

	ev, ok = toEvent(&ytdlp.ProgressUpdate{Status: ytdlp.ProgressStatusError})
	if !ok || ev.Phase != PhaseError || ev.Err == nil {
		t.Fatalf("expected error event, got %#v ok=%v", ev, ok)
	}
}

func TestToEvent_PrefersStreamFilename(t *testing.T) {
	merged := "/downloads/abc-Clip.mp4"

	ev, ok := toEvent(&ytdlp.ProgressUpdate{
		Status:          ytdlp.ProgressStatusDownloading,
		TotalBytes:      1000,
		DownloadedBytes: 125,
		Filename:        "/downloads/abc-Clip.f137.mp4",
		Info:            &ytdlp.ExtractedInfo{Filename: &merged},
	})
	if !ok {
		t.Fatalf("expected downloading update to map to an event")
	}
	if ev.Filename != "abc-Clip.f137.mp4" {
		t.Fatalf("expected per-stream filename, got %q", ev.Filename)
	}
	if ev.Percent != "12.5%" {
		t.Fatalf("expected 12.5%%, got %q", ev.Percent)
	}
}

func TestToEvent_UnknownTotal(t *testing.T) {
	ev, ok := toEvent(&ytdlp.ProgressUpdate{Status: ytdlp.ProgressStatusDownloading, DownloadedBytes: 10})
	if !ok {
		t.Fatalf("expected event")
	}
	if ev.Percent != "" {
		t.Fatalf("expected empty percent without total, got %q", ev.Percent)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		out  string
		auth bool
		msg  string
	}{
		{
			name: "bot check",
			out:  "exit status 1\nERROR: [youtube] abc: Sign in to confirm you're not a bot. Use --cookies-from-browser or --cookies for the authentication.",
			auth: true,
			msg:  "login required: [youtube] abc: Sign in to confirm you're not a bot. Use --cookies-from-browser or --cookies for the authentication.",
		},
		{
			name: "format",
			out:  "exit status 1\nERROR: [youtube] abc: Requested format is not available",
			auth: false,
			msg:  "yt-dlp failed: [youtube] abc: Requested format is not available",
		},
		{
			name: "no error line",
			out:  "exec: \"yt-dlp\": executable file not found in $PATH",
			auth: false,
			msg:  "yt-dlp failed: exec: \"yt-dlp\": executable file not found in $PATH",
		},
	}

	for _, tt := range tests {
		err := classify(errors.New(tt.out))
		if errors.Is(err, ErrAuthRequired) != tt.auth {
			t.Errorf("%s: auth = %v, want %v", tt.name, !tt.auth, tt.auth)
		}
		if err.Error() != tt.msg {
			t.Errorf("%s: message = %q, want %q", tt.name, err.Error(), tt.msg)
		}
	}
}
