package preview

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// DefaultDelay is how long the URL must stay unchanged before fetching.
const DefaultDelay = 400 * time.Millisecond

// State is the preview panel's view of the latest requested URL.
type State struct {
	URL     string
	Article *keyfactor.NewsArticle
	Loading bool
	Err     error
	// Seq increases with every request; updates for older Seq values are
	// never published.
	Seq uint64
}

// Option customizes a Previewer.
type Option func(*Previewer)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(p *Previewer) {
		if d >= 0 {
			p.delay = d
		}
	}
}

// WithUpdateHandler registers fn to receive every published State. fn runs
// on a background goroutine and must not block for long.
func WithUpdateHandler(fn func(State)) Option {
	return func(p *Previewer) {
		p.onUpdate = fn
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Previewer) {
		if l != nil {
			p.logger = l
		}
	}
}

// Previewer debounces URL edits and keeps at most one fetch in flight. A
// newer request cancels the previous fetch, and a cancelled fetch is not
// reported as an error.
type Previewer struct {
	fetcher  Fetcher
	delay    time.Duration
	onUpdate func(State)
	logger   *zap.Logger

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	state  State
	closed bool
}

// NewPreviewer returns a previewer backed by fetcher.
func NewPreviewer(fetcher Fetcher, opts ...Option) *Previewer {
	base, shutdown := context.WithCancel(context.Background())
	p := &Previewer{
		fetcher:  fetcher,
		delay:    DefaultDelay,
		logger:   zap.NewNop(),
		base:     base,
		shutdown: shutdown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// State returns the latest published state.
func (p *Previewer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Request schedules a preview for rawURL. Invalid or empty URLs clear the
// preview without fetching.
func (p *Previewer) Request(rawURL string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.seq++
	seq := p.seq
	p.abortLocked()

	normalized, ok := keyfactor.NormalizeURL(rawURL)
	if !ok || p.fetcher == nil {
		p.state = State{URL: rawURL, Seq: seq}
		state := p.state
		p.mu.Unlock()
		p.publish(state)
		return
	}
	p.state = State{URL: normalized, Loading: true, Seq: seq}
	state := p.state
	p.wg.Add(1)
	p.timer = time.AfterFunc(p.delay, func() {
		defer p.wg.Done()
		p.start(seq, normalized)
	})
	p.mu.Unlock()
	p.publish(state)
}

// Close aborts pending work and waits for background goroutines to exit.
func (p *Previewer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.abortLocked()
	p.mu.Unlock()
	p.shutdown()
	p.wg.Wait()
}

func (p *Previewer) abortLocked() {
	if p.timer != nil {
		if p.timer.Stop() {
			p.wg.Done()
		}
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Previewer) start(seq uint64, target string) {
	p.mu.Lock()
	if p.closed || seq != p.seq {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(p.base)
	p.cancel = cancel
	p.timer = nil
	p.mu.Unlock()

	article, err := p.fetcher.Fetch(ctx, target)
	aborted := ctx.Err() != nil
	cancel()

	p.mu.Lock()
	if p.closed || seq != p.seq {
		p.mu.Unlock()
		p.logger.Debug("dropping stale preview", zap.String("url", target))
		return
	}
	if err != nil && aborted && errors.Is(err, context.Canceled) {
		p.mu.Unlock()
		return
	}
	p.cancel = nil
	p.state = State{URL: target, Article: article, Err: err, Seq: seq}
	state := p.state
	p.mu.Unlock()
	if err != nil {
		p.logger.Warn("news preview failed", zap.String("url", target), zap.Error(err))
	}
	p.publish(state)
}

func (p *Previewer) publish(state State) {
	if p.onUpdate != nil {
		p.onUpdate(state)
	}
}
