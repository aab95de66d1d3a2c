package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/transit-tracker/ingest/internal/logging"
	"github.com/transit-tracker/ingest/internal/metrics"
	"github.com/transit-tracker/ingest/internal/model"
)

// ErrInvalidInterval is returned by NewPoller when the poll interval is not positive
var ErrInvalidInterval = errors.New("poll interval must be positive")

// FeedFetcher retrieves a raw payload
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FeedDecoder decodes a raw payload
type FeedDecoder interface {
	Decode(data []byte, mode Mode) (*Result, error)
}

// Publisher receives successfully decoded lists
type Publisher interface {
	PublishTrips(ctx context.Context, trips []model.Trip) error
	PublishVehiclePositions(ctx context.Context, positions []model.VehiclePosition) error
}

// TripStore is the snapshot side of a publisher
type TripStore interface {
	UpdateTrips(trips []model.Trip)
	UpdateVehiclePositions(positions []model.VehiclePosition)
}

// DirectPublisher hands decoded lists straight to a TripStore
type DirectPublisher struct {
	store TripStore
}

func NewDirectPublisher(store TripStore) *DirectPublisher {
	return &DirectPublisher{store: store}
}

func (p *DirectPublisher) PublishTrips(_ context.Context, trips []model.Trip) error {
	p.store.UpdateTrips(trips)
	return nil
}

func (p *DirectPublisher) PublishVehiclePositions(_ context.Context, positions []model.VehiclePosition) error {
	p.store.UpdateVehiclePositions(positions)
	return nil
}

// Options configures a Poller
type Options struct {
	Feeds        []Feed
	Interval     time.Duration
	InitialDelay time.Duration
	Logger       *slog.Logger
	Stats        *metrics.FeedStats
}

// Poller fetches and decodes every feed once per tick. A failing feed is
// logged and leaves the published snapshot untouched; the other feeds of the
// tick still run.
type Poller struct {
	fetcher   FeedFetcher
	decoder   FeedDecoder
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	stats     *metrics.FeedStats

	running  atomic.Bool
	inflight sync.WaitGroup
}

// NewPoller validates opts and returns a poller
func NewPoller(fetcher FeedFetcher, decoder FeedDecoder, publisher Publisher, opts Options) (*Poller, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, opts.Interval)
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	for _, feed := range opts.Feeds {
		if _, err := ParseMode(string(feed.Mode)); err != nil {
			return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
		}
	}

	stats := opts.Stats
	if stats == nil {
		stats = metrics.NewFeedStats()
	}

	return &Poller{
		fetcher:   fetcher,
		decoder:   decoder,
		publisher: publisher,
		opts:      opts,
		logger:    logging.OrDefault(opts.Logger),
		stats:     stats,
	}, nil
}

// Stats returns the per-feed statistics
func (p *Poller) Stats() *metrics.FeedStats {
	return p.stats
}

// LastHeader returns the header of the last successfully decoded message of feed
func (p *Poller) LastHeader(feed string) (model.FeedHeader, bool) {
	return p.stats.LastHeader(feed)
}

// Run polls after the initial delay and then every interval until ctx is
// done. Ticks run in their own goroutine; a tick that comes due while the
// previous one is still running is skipped. Run returns once the in-flight
// tick has observed the cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller starting",
		slog.Duration("interval", p.opts.Interval),
		slog.Duration("initial_delay", p.opts.InitialDelay),
		slog.Int("feeds", len(p.opts.Feeds)))

	delay := time.NewTimer(p.opts.InitialDelay)
	defer delay.Stop()

	select {
	case <-delay.C:
	case <-ctx.Done():
		p.logger.Info("poller stopped before first poll")
		return nil
	}

	p.spawn(ctx)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.spawn(ctx)
		case <-ctx.Done():
			p.inflight.Wait()
			p.logger.Info("polling loop stopped")
			return nil
		}
	}
}

func (p *Poller) spawn(ctx context.Context) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.Poll(ctx)
	}()
}

// Poll runs one tick over every feed. It returns false without doing
// anything when another tick is still in progress.
func (p *Poller) Poll(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Warn("previous poll still running, skipping tick")
		for _, feed := range p.opts.Feeds {
			p.stats.RecordSkip(feed.Name)
		}
		return false
	}
	defer p.running.Store(false)

	for _, feed := range p.opts.Feeds {
		if ctx.Err() != nil {
			return true
		}
		if err := p.pollFeed(ctx, feed); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				p.logger.Debug("feed poll abandoned", slog.String("feed", feed.Name))
				return true
			}
			p.stats.RecordFailure(feed.Name, err)
			logging.LogError(p.logger, "feed poll failed", err,
				slog.String("feed", feed.Name),
				slog.String("mode", string(feed.Mode)))
		}
	}
	return true
}

func (p *Poller) pollFeed(ctx context.Context, feed Feed) error {
	started := time.Now()

	data, err := p.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return err
	}

	res, err := p.decoder.Decode(data, feed.Mode)
	if err != nil {
		var decodeErr *DecodeFailure
		if errors.As(err, &decodeErr) {
			decodeErr.Feed = feed.Name
		}
		return err
	}

	var entities int
	switch feed.Mode {
	case ModeTripUpdates:
		entities = len(res.Trips)
		err = p.publisher.PublishTrips(ctx, res.Trips)
	case ModeVehiclePositions:
		entities = len(res.VehiclePositions)
		err = p.publisher.PublishVehiclePositions(ctx, res.VehiclePositions)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", feed.Name, err)
	}

	elapsed := time.Since(started)
	p.stats.RecordSuccess(feed.Name, elapsed, entities)
	p.stats.RecordHeader(feed.Name, res.Header)

	attrs := []slog.Attr{
		slog.String("feed", feed.Name),
		slog.Int("entities", entities),
		slog.Duration("duration", elapsed),
		slog.String("gtfs_realtime_version", res.Header.Version),
	}
	if res.Header.Timestamp != nil {
		attrs = append(attrs, slog.Time("feed_timestamp", *res.Header.Timestamp))
	}
	logging.LogOperation(p.logger, "feed published", attrs...)
	return nil
}
