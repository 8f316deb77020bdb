package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressBar renders a single-line progress bar. Its Report method has the
// shape of the progress callbacks taken by bulk operations.
type ProgressBar struct {
	mu          sync.Mutex
	out         io.Writer
	total       int
	current     int
	description string
	startTime   time.Time
	width       int
}

// NewProgressBar creates a new progress bar writing to stderr.
func NewProgressBar(description string) *ProgressBar {
	return &ProgressBar{
		out:         os.Stderr,
		description: description,
		startTime:   time.Now(),
		width:       40,
	}
}

// SetOutput redirects rendering.
func (pb *ProgressBar) SetOutput(w io.Writer) *ProgressBar {
	pb.out = w
	return pb
}

// Report updates both position and total, then redraws.
func (pb *ProgressBar) Report(current, total int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
	pb.total = total
	pb.render()
}

// SetDescription updates the description
func (pb *ProgressBar) SetDescription(desc string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.description = desc
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	if pb.total <= 0 {
		return
	}

	current := pb.current
	if current > pb.total {
		current = pb.total
	}

	percentage := float64(current) / float64(pb.total) * 100
	filled := pb.width * current / pb.total
	bar := strings.Repeat("#", filled) + strings.Repeat("-", pb.width-filled)

	var eta string
	if current > 0 && current < pb.total {
		elapsed := time.Since(pb.startTime)
		remaining := time.Duration(float64(elapsed)*float64(pb.total)/float64(current)) - elapsed
		if remaining > 0 {
			eta = fmt.Sprintf(" ETA: %v", remaining.Round(time.Second))
		}
	}

	fmt.Fprintf(pb.out, "\r%s [%s] %.1f%% (%d/%d)%s",
		pb.description, bar, percentage, current, pb.total, eta)
}
