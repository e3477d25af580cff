// Package geo provides geolocators that do not talk to device hardware:
// positions reported by the map client, a fixed coordinate, or none at all.
package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samirrijal/poimap/internal/core/domain"
)

// Deferred resolves once, with the first position or error reported by the
// client. Locate blocks until then or until ctx is done.
type Deferred struct {
	once  sync.Once
	ready chan struct{}
	mu    sync.Mutex
	pos   domain.Coordinate
	err   error
}

func NewDeferred() *Deferred {
	return &Deferred{ready: make(chan struct{})}
}

// Resolve records pos. Later reports are ignored.
func (d *Deferred) Resolve(pos domain.Coordinate) {
	d.settle(pos, nil)
}

// Reject records err. A nil err is reported as ErrLocationUnavailable.
func (d *Deferred) Reject(err error) {
	if err == nil {
		err = domain.ErrLocationUnavailable
	}
	d.settle(domain.Coordinate{}, err)
}

func (d *Deferred) settle(pos domain.Coordinate, err error) {
	d.once.Do(func() {
		d.mu.Lock()
		d.pos, d.err = pos, err
		d.mu.Unlock()
		close(d.ready)
	})
}

// Settled reports whether a position or error has been recorded.
func (d *Deferred) Settled() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}

func (d *Deferred) Locate(ctx context.Context) (domain.Coordinate, error) {
	select {
	case <-d.ready:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.pos, d.err
	case <-ctx.Done():
		return domain.Coordinate{}, ctx.Err()
	}
}

// Static always reports the same coordinate.
type Static struct {
	At domain.Coordinate
}

func (s Static) Locate(ctx context.Context) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}
	if !s.At.Valid() {
		return domain.Coordinate{}, fmt.Errorf("%w: static coordinate %s out of range", domain.ErrLocationUnavailable, s.At)
	}
	return s.At, nil
}

// Unavailable never produces a fix.
type Unavailable struct{}

var errNoProvider = errors.New("no geolocation provider configured")

func (Unavailable) Locate(context.Context) (domain.Coordinate, error) {
	return domain.Coordinate{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, errNoProvider)
}
