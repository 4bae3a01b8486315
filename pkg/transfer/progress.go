package transfer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// ProgressFunc receives per-file progress at every chunk boundary.
type ProgressFunc func(file string, sent, total int64)

var (
	// ErrProgressRegressed is returned when a file reports fewer bytes than before.
	ErrProgressRegressed = errors.New("progress went backwards")
	// ErrProgressOverflow is returned when a file reports more bytes than its size.
	ErrProgressOverflow = errors.New("progress exceeds file size")
)

type fileProgress struct {
	sent  int64
	total int64
}

// Tracker follows upload progress per file. The upload is complete when the
// most recently reported file has sent all of its bytes.
type Tracker struct {
	mu    sync.Mutex
	files map[string]fileProgress
	last  string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{files: make(map[string]fileProgress)}
}

// Update records a progress event and reports whether it completed the file.
func (t *Tracker) Update(file string, sent, total int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.files[file]; ok && sent < prev.sent {
		return false, fmt.Errorf("%s: %w (%d < %d)", file, ErrProgressRegressed, sent, prev.sent)
	}
	if sent > total {
		return false, fmt.Errorf("%s: %w (%d > %d)", file, ErrProgressOverflow, sent, total)
	}

	t.files[file] = fileProgress{sent: sent, total: total}
	t.last = file
	return sent == total, nil
}

// Complete reports whether the last active file has been fully sent.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == "" {
		return false
	}
	p := t.files[t.last]
	return p.sent == p.total
}

// LastFile returns the most recently reported file.
func (t *Tracker) LastFile() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Transferred returns the bytes sent across all files.
func (t *Tracker) Transferred() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int64
	for _, p := range t.files {
		n += p.sent
	}
	return n
}

// Percent returns ceil(sent/total*100); empty files count as 100.
func Percent(sent, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(math.Ceil(float64(sent) / float64(total) * 100))
}

// Reporter turns progress events into human readable log lines. A line is
// written when a new file starts, when a file finishes, and otherwise when the
// percentage changes and the limiter allows it. Once the upload size is known
// through Expect, intermediate lines carry an estimate of the time left.
type Reporter struct {
	mu      sync.Mutex
	logf    func(string)
	limiter *rate.Limiter
	rate    *throughput
	now     func() time.Time
	file    string
	pct     int
	sent    int64
	files   int
	bytes   int64
	expect  int64
	started time.Time
}

// NewReporter creates a reporter writing to logf at most once per interval
// for intermediate percentages. interval <= 0 disables throttling.
func NewReporter(logf func(string), interval time.Duration) *Reporter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Reporter{
		logf:    logf,
		limiter: rate.NewLimiter(limit, 1),
		rate:    newThroughput(etaWindow),
		now:     time.Now,
		pct:     -1,
	}
}

// Expect sets the total number of bytes the upload will send.
func (r *Reporter) Expect(totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expect = totalBytes
}

// Report is a ProgressFunc.
func (r *Reporter) Report(file string, sent, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.started.IsZero() {
		r.started = now
	}

	newFile := file != r.file
	if newFile {
		r.file = file
		r.pct = -1
		r.sent = 0
		r.files++
	}

	if delta := sent - r.sent; delta > 0 {
		r.sent = sent
		r.bytes += delta
		r.rate.add(now, delta)
	}

	pct := Percent(sent, total)
	if pct == r.pct {
		return
	}
	if !newFile && pct < 100 && !r.limiter.Allow() {
		return
	}
	r.pct = pct

	line := fmt.Sprintf("Uploading %s (%d%%)", file, pct)
	if pct < 100 {
		if eta := r.rate.eta(r.expect - r.bytes); eta >= time.Second {
			line = fmt.Sprintf("Uploading %s (%d%%, about %s left)", file, pct, eta.Round(time.Second))
		}
	}
	r.logf(line)
}

// Summary describes everything reported so far.
func (r *Reporter) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var elapsed time.Duration
	if !r.started.IsZero() {
		elapsed = r.now().Sub(r.started)
	}
	perSecond := uint64(0)
	if elapsed > 0 {
		perSecond = uint64(float64(r.bytes) / elapsed.Seconds())
	}
	return fmt.Sprintf("Uploaded %d files, %s in %s (%s/s)",
		r.files, humanize.Bytes(uint64(r.bytes)), elapsed.Round(time.Millisecond), humanize.Bytes(perSecond))
}

const etaWindow = 5 * time.Second

type byteSample struct {
	at    time.Time
	bytes int64
}

// throughput measures bytes per second over a sliding time window.
type throughput struct {
	window  time.Duration
	samples []byteSample
}

func newThroughput(window time.Duration) *throughput {
	return &throughput{window: window}
}

func (t *throughput) add(at time.Time, bytes int64) {
	t.samples = append(t.samples, byteSample{at: at, bytes: bytes})

	cutoff := at.Add(-t.window)
	drop := 0
	for drop < len(t.samples)-1 && t.samples[drop].at.Before(cutoff) {
		drop++
	}
	t.samples = t.samples[drop:]
}

// perSecond excludes the oldest sample's bytes, which were sent before the
// window opened.
func (t *throughput) perSecond() float64 {
	if len(t.samples) < 2 {
		return 0
	}
	span := t.samples[len(t.samples)-1].at.Sub(t.samples[0].at).Seconds()
	if span <= 0 {
		return 0
	}
	var n int64
	for _, s := range t.samples[1:] {
		n += s.bytes
	}
	return float64(n) / span
}

// eta is zero when nothing remains or the rate is unknown.
func (t *throughput) eta(remaining int64) time.Duration {
	speed := t.perSecond()
	if remaining <= 0 || speed <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / speed * float64(time.Second))
}
