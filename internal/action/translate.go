package action

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Thepalm86/trip-sub001/internal/models"
)

// DedupKey returns the key under which an envelope is deduplicated. The
// metadata request id wins when present; otherwise a structural hash of
// (type, payload) stands in, so redelivery of identical model output is
// idempotent even without metadata.
func DedupKey(env Envelope) string {
	if env.Meta != nil && env.Meta.RequestID != "" {
		return "req:" + env.Meta.RequestID
	}
	payload, err := json.Marshal(env.Intent)
	if err != nil {
		// Marshal of these closed payload types cannot fail in practice;
		// fall back to a type-only key rather than dropping dedup entirely.
		payload = nil
	}
	sum := sha256.Sum256(append([]byte(env.Intent.ActionType()), payload...))
	return "sha:" + hex.EncodeToString(sum[:16])
}

// ToAddDestination translates the assistant-proposed add into the
// server-authoritative vocabulary. Place-id resolution is an external
// concern; the fallback query doubles as the display name until a richer
// place record is attached upstream.
func (a AddPlaceToItinerary) ToAddDestination() AddDestination {
	spec := DestinationSpec{
		Name:         a.FallbackQuery,
		Notes:        a.Notes,
		StartTimeIso: a.StartTime,
	}
	if a.DurationMinutes > 0 {
		d := a.DurationMinutes
		spec.EstimatedDurationMinutes = &d
	}
	if len(a.Tags) > 0 {
		spec.Category = a.Tags[0]
	}
	if a.Lat != nil && a.Lng != nil {
		spec.Coordinates = &models.Coordinates{Lat: *a.Lat, Lng: *a.Lng}
	}
	return AddDestination{DayID: a.DayID, Destination: spec}
}

// ToDestinationSpec translates a replacement descriptor into a destination
// spec for insertion at the replaced item's position.
func (r ReplacementSpec) ToDestinationSpec() DestinationSpec {
	spec := DestinationSpec{
		Name:                     r.FallbackQuery,
		Notes:                    r.Notes,
		StartTimeIso:             r.StartTime,
		EstimatedDurationMinutes: r.DurationMinutes,
	}
	if r.Lat != nil && r.Lng != nil {
		spec.Coordinates = &models.Coordinates{Lat: *r.Lat, Lng: *r.Lng}
	}
	return spec
}

// Describe returns a short, log-friendly identity for an intent.
func Describe(intent Intent) string {
	switch a := intent.(type) {
	case AddDestination:
		return fmt.Sprintf("%s(%s -> day %s)", a.ActionType(), a.Destination.Name, a.DayID)
	case UpdateDestination:
		return fmt.Sprintf("%s(%s)", a.ActionType(), a.DestinationID)
	case SetBaseLocation:
		return fmt.Sprintf("%s(%s -> day %s)", a.ActionType(), a.Location.Name, a.DayID)
	case MoveDestination:
		return fmt.Sprintf("%s(%s: %s -> %s)", a.ActionType(), a.DestinationID, a.FromDayID, a.ToDayID)
	case ToggleMapOverlay:
		return fmt.Sprintf("%s(%s)", a.ActionType(), a.Overlay)
	case AddPlaceToItinerary:
		return fmt.Sprintf("%s(%s -> day %s)", a.ActionType(), a.FallbackQuery, a.DayID)
	case RescheduleItineraryItem:
		return fmt.Sprintf("%s(%s -> day %s)", a.ActionType(), a.ItemID, a.NewDayID)
	case RemoveOrReplaceItem:
		return fmt.Sprintf("%s(%s %s)", a.ActionType(), a.Mode, a.ItemID)
	}
	return string(intent.ActionType())
}
