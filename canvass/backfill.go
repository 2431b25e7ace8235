// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBackfillConcurrency is the number of concurrent reverse geocodes.
const DefaultBackfillConcurrency = 4

// BackfillStats summarizes a BackfillPlacemarks run.
type BackfillStats struct {
	Candidates int
	Updated    int
	Failed     int
	// Collisions counts completed addresses left alone because their new key
	// already belongs to another stored address.
	Collisions int
	// QuotaExceeded is set when the run stopped early because the geocoder
	// quota ran out.
	QuotaExceeded bool
}

// errQuotaStop stops a backfill run when the geocoder quota is exhausted.
type errQuotaStop struct{ err error }

func (e *errQuotaStop) Error() string { return "geocoder quota exceeded: " + e.err.Error() }

func (e *errQuotaStop) Unwrap() error { return e.err }

// needsPlacemark reports whether a stored address has a coordinate but is
// missing one of its city, state or zip.
func needsPlacemark(a Address) bool {
	return a.Point != nil && (a.City == nil || a.StateCode == nil || a.ZipCode == nil)
}

// fillFromPlacemark sets the absent postal fields of a from pm.
func fillFromPlacemark(a Address, pm Placemark) (Address, bool) {
	changed := false

	fill := func(dst **string, v string) {
		if *dst == nil {
			if p := optional(v); p != nil {
				*dst = p
				changed = true
			}
		}
	}

	fill(&a.City, pm.Locality)
	fill(&a.StateCode, pm.AdministrativeArea)
	fill(&a.ZipCode, pm.PostalCode)

	return a, changed
}

// BackfillPlacemarks reverse geocodes stored addresses that have a
// coordinate but lack city, state or zip, and stores the completed records.
// A failed geocode is logged and counted, it does not stop the run unless
// the geocoder quota is exhausted; the addresses completed so far are still
// stored then. progress, when non-nil, is called once per candidate.
func BackfillPlacemarks(
	ctx context.Context,
	repo AddressRepository,
	geocoder Geocoder,
	concurrency int,
	progress func(),
	logger *zap.Logger,
) (BackfillStats, error) {
	all, err := repo.AllSorted()
	if err != nil {
		return BackfillStats{}, fmt.Errorf("listing addresses: %w", err)
	}

	var candidates []*StoredAddress

	for _, s := range all {
		if needsPlacemark(s.Address) {
			candidates = append(candidates, s)
		}
	}

	stats := BackfillStats{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return stats, nil
	}

	if concurrency <= 0 {
		concurrency = DefaultBackfillConcurrency
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	updated := make([]*Address, len(candidates))

	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, stored := range candidates {
		g.Go(func() error {
			if progress != nil {
				defer progress()
			}

			if gctx.Err() != nil {
				return gctx.Err()
			}

			log := logger.With(zap.String("key", stored.Key))

			placemarks, err := geocoder.ReverseGeocode(gctx, *stored.Address.Point)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				failed.Add(1)

				if IsQuotaExceededError(err) {
					return &errQuotaStop{err: err}
				}

				log.Warn("reverse geocode failed", zap.Error(err))

				return nil
			}

			if len(placemarks) == 0 {
				log.Debug("no placemark for address")

				return nil
			}

			if addr, changed := fillFromPlacemark(stored.Address, placemarks[0]); changed {
				updated[i] = &addr
			}

			return nil
		})
	}

	err = g.Wait()
	stats.Failed = int(failed.Load())

	var quota *errQuotaStop

	switch {
	case errors.As(err, &quota):
		stats.QuotaExceeded = true
		logger.Warn("stopping backfill", zap.Error(quota.err))
	case err != nil:
		return stats, fmt.Errorf("backfilling placemarks: %w", err)
	}

	// Filling postal fields changes the address key, so the old rows go.
	for i, addr := range updated {
		if addr == nil {
			continue
		}

		newKey, err := AddressKey(*addr)
		if err != nil {
			return stats, err
		}

		if newKey != candidates[i].Key {
			_, err := repo.Get(newKey)
			if err == nil {
				stats.Collisions++
				logger.Warn("completed address matches another stored address",
					zap.String("key", candidates[i].Key),
					zap.String("existing", newKey),
				)

				continue
			}

			if !errors.Is(err, ErrAddressNotFound) {
				return stats, fmt.Errorf("checking %s: %w", newKey, err)
			}
		}

		saved, err := repo.Save(*addr)
		if err != nil {
			return stats, fmt.Errorf("saving %s: %w", candidates[i].Key, err)
		}

		if saved.Key != candidates[i].Key {
			if err := repo.Delete(candidates[i].Key); err != nil {
				return stats, fmt.Errorf("removing %s: %w", candidates[i].Key, err)
			}
		}

		stats.Updated++
	}

	return stats, nil
}
