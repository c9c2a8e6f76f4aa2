package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// Options configures the yt-dlp invocation shared by every job.
type Options struct {
	Format           string
	CookiesFile      string
	ProgressInterval time.Duration
}

// YTDLP runs the yt-dlp binary through go-ytdlp.
type YTDLP struct {
	opts Options
}

func NewYTDLP(opts Options) *YTDLP {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	return &YTDLP{opts: opts}
}

func (y *YTDLP) command(req Request, progress ProgressFunc) *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		RestrictFilenames().
		Output(req.OutputTemplate)

	if y.opts.Format != "" {
		dl = dl.Format(y.opts.Format)
	}
	if y.opts.CookiesFile != "" {
		dl = dl.Cookies(y.opts.CookiesFile)
	}

	dl.ProgressFunc(y.opts.ProgressInterval, func(update ytdlp.ProgressUpdate) {
		if ev, ok := toEvent(&update); ok {
			progress(ev)
		}
	})
	return dl
}

func (y *YTDLP) Download(ctx context.Context, req Request, progress ProgressFunc) error {
	if strings.TrimSpace(req.URL) == "" {
		return errors.New("url is required")
	}
	if _, err := y.command(req, progress).Run(ctx, req.URL); err != nil {
		return classify(err)
	}
	return nil
}

// toEvent maps a go-ytdlp update to a phase event; updates of other phases are dropped.
func toEvent(update *ytdlp.ProgressUpdate) (Event, bool) {
	ev := Event{}
	// Filename names the stream in flight; Info.Filename is the merged destination.
	switch {
	case update.Filename != "":
		ev.Filename = filepath.Base(update.Filename)
	case update.Info != nil && update.Info.Filename != nil:
		ev.Filename = filepath.Base(*update.Info.Filename)
	}

	switch update.Status {
	case ytdlp.ProgressStatusDownloading:
		ev.Phase = PhaseDownloading
		if update.TotalBytes > 0 {
			ev.Percent = fmt.Sprintf("%.1f%%", update.Percent())
		}
	case ytdlp.ProgressStatusFinished:
		ev.Phase = PhaseFinished
	case ytdlp.ProgressStatusError:
		ev.Phase = PhaseError
		ev.Err = errors.New("yt-dlp reported a download error")
	default:
		return Event{}, false
	}
	return ev, true
}

// classify wraps yt-dlp failures so callers can tell a login wall from other errors.
func classify(err error) error {
	msg := summarize(err.Error())
	if IsAuthMessage(err.Error()) {
		return fmt.Errorf("%w: %s", ErrAuthRequired, msg)
	}
	return fmt.Errorf("yt-dlp failed: %s", msg)
}

// summarize keeps the first "ERROR:" line of yt-dlp output, or the first line.
func summarize(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if i := strings.Index(l, "ERROR:"); i >= 0 {
			return strings.TrimSpace(l[i+len("ERROR:"):])
		}
	}
	return strings.TrimSpace(lines[0])
}
