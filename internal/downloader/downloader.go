// Package downloader defines the fetch capability the worker drives and
// its yt-dlp implementation.
package downloader

import (
	"context"
	"errors"
	"strings"
)

// ErrAuthRequired marks failures where the remote side asks for a login or bot check.
var ErrAuthRequired = errors.New("login required")

type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseFinished    Phase = "finished"
	PhaseError       Phase = "error"
)

// Event is one phase notification emitted while a download runs.
type Event struct {
	Phase    Phase
	Percent  string // e.g. " 42.0%", may be empty or garbage
	Filename string
	Err      error // set for PhaseError
}

type ProgressFunc func(Event)

type Request struct {
	URL            string
	OutputTemplate string
}

// Downloader fetches req.URL into req.OutputTemplate, calling progress synchronously
// in event order. A nil return means the bytes are on disk.
type Downloader interface {
	Download(ctx context.Context, req Request, progress ProgressFunc) error
}

var authMarkers = []string{
	"sign in to confirm",
	"login required",
	"login_required",
	"use --cookies",
	"--cookies-from-browser",
	"authentication",
	"members-only",
	"private video",
}

// IsAuthMessage reports whether a downloader message asks for credentials.
func IsAuthMessage(msg string) bool {
	m := strings.ToLower(msg)
	for _, marker := range authMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
