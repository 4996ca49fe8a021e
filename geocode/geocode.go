package geocode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"go-aidr/types"
)

const (
	lookupTimeout  = 10 * time.Second
	maxConcurrency = 4
)

var ErrNotConfigured = errors.New("MAPS_CREDENTIALS not set")

// mapsClient is a singleton maps client instance.
var (
	mapsClient *maps.Client
	clientErr  error
	clientOnce sync.Once
)

// InitMapsClient initializes and returns a singleton Google Maps client.
func InitMapsClient(apiKey string) (*maps.Client, error) {
	clientOnce.Do(func() {
		if apiKey == "" {
			clientErr = ErrNotConfigured
			return
		}
		mapsClient, clientErr = maps.NewClient(maps.WithAPIKey(apiKey))
		if clientErr != nil {
			clientErr = fmt.Errorf("creating maps client: %w", clientErr)
		}
	})
	return mapsClient, clientErr
}

// Geocoder is the subset of *maps.Client used here.
type Geocoder interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

type IncidentStore interface {
	UpdateIncident(id string, fn func(*types.Incident)) (types.Incident, error)
}

// LocationSaver persists a resolved incident position.
type LocationSaver interface {
	SaveIncidentLocation(ctx context.Context, id string, loc types.LatLng, formatted string) error
}

// Enricher resolves the free-text location of incidents that arrive without
// coordinates. Lookups run in the background; Enrich never blocks.
type Enricher struct {
	geo   Geocoder
	store IncidentStore
	saver LocationSaver
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    chan struct{}
	mu     sync.Mutex
}

type Option func(*Enricher)

func WithLocationSaver(s LocationSaver) Option {
	return func(e *Enricher) { e.saver = s }
}

func NewEnricher(geo Geocoder, store IncidentStore, logger *zap.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		geo:   geo,
		store: store,
		log:   logger.Named("geocode"),
		sem:   make(chan struct{}, maxConcurrency),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Enricher) Enrich(inc types.Incident) {
	address := inc.ExtractedData.LocationString
	if address == "" || !inc.Location.IsZero() {
		return
	}

	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-e.ctx.Done():
			return
		}
		e.resolve(inc.ID, address)
	}()
}

func (e *Enricher) resolve(id, address string) {
	ctx, cancel := context.WithTimeout(e.ctx, lookupTimeout)
	defer cancel()

	results, err := e.geo.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		e.log.Warn("Failed to geocode", zap.String("incident", id), zap.String("address", address), zap.Error(err))
		return
	}
	if len(results) == 0 {
		e.log.Info("No geocode results", zap.String("incident", id), zap.String("address", address))
		return
	}

	best := results[0]
	loc := types.LatLng{Lat: best.Geometry.Location.Lat, Lng: best.Geometry.Location.Lng}
	applied := false
	_, err = e.store.UpdateIncident(id, func(inc *types.Incident) {
		// a position reported meanwhile wins over the lookup
		if inc.Location.IsZero() {
			inc.Location = loc
			applied = true
		}
	})
	if err != nil {
		e.log.Warn("Geocoded incident is gone", zap.String("incident", id), zap.Error(err))
		return
	}
	if !applied {
		return
	}
	e.log.Info("Geocoded incident", zap.String("incident", id), zap.String("formattedAddress", best.FormattedAddress))

	if e.saver != nil {
		if err := e.saver.SaveIncidentLocation(ctx, id, loc, best.FormattedAddress); err != nil {
			e.log.Warn("Failed to save incident location", zap.String("incident", id), zap.Error(err))
		}
	}
}

// Wait blocks until all queued lookups have finished.
func (e *Enricher) Wait() {
	e.wg.Wait()
}

// Close abandons queued lookups and waits for running ones.
func (e *Enricher) Close() {
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
}
