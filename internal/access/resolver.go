// Package access walks the user -> trip -> day -> destination ownership
// chain and authorizes itinerary mutations. Every mutation referencing a day
// or destination id from an untrusted source goes through this resolver
// first; the only exception is the view-state overlay toggle, which has no
// ownership chain.
package access

import (
	"context"

	"go.uber.org/zap"

	"github.com/Thepalm86/trip-sub001/internal/database"
	"github.com/Thepalm86/trip-sub001/internal/models"
)

// DayAccess is a resolved, authorized day context.
type DayAccess struct {
	Trip  *models.Trip
	Day   *models.Day
	Label string
}

// DestinationAccess is a resolved, authorized destination context.
type DestinationAccess struct {
	Trip        *models.Trip
	Day         *models.Day
	Destination *models.Destination
	Label       string
}

// Resolver performs the ownership checks. It only reads; all failures are
// typed so callers can distinguish Forbidden (exists, not yours) from
// NotFound (does not exist) — the two must never be conflated.
type Resolver struct {
	repo   database.Repository
	logger *zap.Logger
}

// NewResolver creates a new ownership resolver.
func NewResolver(repo database.Repository, logger *zap.Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger}
}

// ResolveDayAccess fetches the day and its owning trip and verifies the trip
// belongs to userID.
func (r *Resolver) ResolveDayAccess(ctx context.Context, userID, dayID string) (*DayAccess, error) {
	day, err := r.repo.GetDay(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, models.NewNotFound("day", dayID)
	}

	trip, err := r.repo.GetTrip(ctx, day.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		// A day pointing at a missing trip is a data-integrity anomaly,
		// surfaced as not-found rather than leaking the dangling reference.
		r.logger.Warn("Day references missing trip",
			zap.String("day_id", dayID),
			zap.String("trip_id", day.TripID),
		)
		return nil, models.NewNotFound("trip", day.TripID)
	}

	if trip.UserID != userID {
		r.logger.Warn("Denied day access",
			zap.String("day_id", dayID),
			zap.String("trip_id", trip.ID),
		)
		return nil, models.NewForbidden("day", dayID, "not owned by caller")
	}

	return &DayAccess{Trip: trip, Day: day, Label: day.Label()}, nil
}

// ResolveDestinationAccess fetches the destination and delegates to the day
// ownership check via the destination's day id.
func (r *Resolver) ResolveDestinationAccess(ctx context.Context, userID, destinationID string) (*DestinationAccess, error) {
	dest, err := r.repo.GetDestination(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	if dest == nil {
		return nil, models.NewNotFound("destination", destinationID)
	}

	dayAccess, err := r.ResolveDayAccess(ctx, userID, dest.DayID)
	if err != nil {
		return nil, err
	}

	return &DestinationAccess{
		Trip:        dayAccess.Trip,
		Day:         dayAccess.Day,
		Destination: dest,
		Label:       dayAccess.Label,
	}, nil
}

// ResolveMove authorizes both ends of a move and enforces that source and
// target days belong to the same trip. Moving content across a user's trips
// silently is disallowed, so a cross-trip pair fails Forbidden even when the
// caller owns both trips.
func (r *Resolver) ResolveMove(ctx context.Context, userID, fromDayID, toDayID string) (*DayAccess, *DayAccess, error) {
	from, err := r.ResolveDayAccess(ctx, userID, fromDayID)
	if err != nil {
		return nil, nil, err
	}

	to, err := r.ResolveDayAccess(ctx, userID, toDayID)
	if err != nil {
		return nil, nil, err
	}

	if from.Trip.ID != to.Trip.ID {
		r.logger.Warn("Denied cross-trip move",
			zap.String("from_trip_id", from.Trip.ID),
			zap.String("to_trip_id", to.Trip.ID),
		)
		return nil, nil, models.NewForbidden("day", toDayID, "source and target days belong to different trips")
	}

	return from, to, nil
}
