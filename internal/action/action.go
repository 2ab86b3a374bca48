// Package action defines the closed set of itinerary action types and the
// structural and semantic constraints each payload must satisfy. Parsing and
// validation are pure: nothing here touches storage or view state.
//
// Two vocabularies cross this boundary. The server-authoritative vocabulary
// (AddDestination, UpdateDestination, SetBaseLocation, MoveDestination,
// ToggleMapOverlay) is what the executor understands. The LLM-facing
// vocabulary (AddPlaceToItinerary, RescheduleItineraryItem,
// RemoveOrReplaceItem) is the untrusted-input shape produced by the
// assistant; it is validated separately and carries its own confirmation and
// confidence fields.
package action

import (
	"github.com/Thepalm86/trip-sub001/internal/models"
)

// Type is the discriminant of an action payload.
type Type string

// Server-authoritative vocabulary.
const (
	TypeAddDestination    Type = "AddDestination"
	TypeUpdateDestination Type = "UpdateDestination"
	TypeSetBaseLocation   Type = "SetBaseLocation"
	TypeMoveDestination   Type = "MoveDestination"
	TypeToggleMapOverlay  Type = "ToggleMapOverlay"
)

// LLM-facing vocabulary.
const (
	TypeAddPlaceToItinerary     Type = "AddPlaceToItinerary"
	TypeRescheduleItineraryItem Type = "RescheduleItineraryItem"
	TypeRemoveOrReplaceItem     Type = "RemoveOrReplaceItem"
)

// Intent is a validated, narrowed action payload. Exactly the payload types
// in this package implement it.
type Intent interface {
	ActionType() Type
}

// Meta is the optional envelope attached to an intent. RequestID drives
// deduplication: re-submission with the same id is a duplicate, never a
// second mutation. Confidence, when present, uses the canonical [0,1] scale.
type Meta struct {
	RequestID  string   `json:"requestId,omitempty"`
	IssuedAt   string   `json:"issuedAt,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

// Envelope pairs a parsed intent with its optional metadata.
type Envelope struct {
	Intent Intent
	Meta   *Meta
}

// DestinationSpec describes a destination to create.
type DestinationSpec struct {
	Name                     string              `json:"name"`
	Category                 string              `json:"category,omitempty"`
	City                     string              `json:"city,omitempty"`
	Notes                    string              `json:"notes,omitempty"`
	Coordinates              *models.Coordinates `json:"coordinates,omitempty"`
	EstimatedDurationMinutes *int                `json:"estimatedDurationMinutes,omitempty"`
	StartTimeIso             string              `json:"startTimeIso,omitempty"`
	EndTimeIso               string              `json:"endTimeIso,omitempty"`
	Links                    []string            `json:"links,omitempty"`
}

// AddDestination inserts a new destination into a day timeline.
type AddDestination struct {
	DayID       string          `json:"dayId"`
	InsertIndex *int            `json:"insertIndex,omitempty"`
	Destination DestinationSpec `json:"destination"`
}

func (AddDestination) ActionType() Type { return TypeAddDestination }

// DestinationChanges is a partial update; at least one field must be set.
type DestinationChanges struct {
	Name                     *string             `json:"name,omitempty"`
	Category                 *string             `json:"category,omitempty"`
	City                     *string             `json:"city,omitempty"`
	Notes                    *string             `json:"notes,omitempty"`
	Coordinates              *models.Coordinates `json:"coordinates,omitempty"`
	EstimatedDurationMinutes *int                `json:"estimatedDurationMinutes,omitempty"`
	StartTimeIso             *string             `json:"startTimeIso,omitempty"`
	EndTimeIso               *string             `json:"endTimeIso,omitempty"`
	Links                    []string            `json:"links,omitempty"`
}

// Empty reports whether no change field is present.
func (c DestinationChanges) Empty() bool {
	return c.Name == nil && c.Category == nil && c.City == nil && c.Notes == nil &&
		c.Coordinates == nil && c.EstimatedDurationMinutes == nil &&
		c.StartTimeIso == nil && c.EndTimeIso == nil && c.Links == nil
}

// UpdateDestination applies a partial update to an existing destination.
type UpdateDestination struct {
	DayID         string             `json:"dayId"`
	DestinationID string             `json:"destinationId"`
	Changes       DestinationChanges `json:"changes"`
}

func (UpdateDestination) ActionType() Type { return TypeUpdateDestination }

// BaseLocationSpec describes a day's home base.
type BaseLocationSpec struct {
	Name        string              `json:"name"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Context     string              `json:"context,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	Links       []string            `json:"links,omitempty"`
}

// SetBaseLocation sets or appends a base location on a day. ReplaceExisting
// defaults to true when absent.
type SetBaseLocation struct {
	DayID           string           `json:"dayId"`
	Location        BaseLocationSpec `json:"location"`
	ReplaceExisting *bool            `json:"replaceExisting,omitempty"`
	LocationIndex   *int             `json:"locationIndex,omitempty"`
}

func (SetBaseLocation) ActionType() Type { return TypeSetBaseLocation }

// Replace reports the effective replaceExisting value.
func (a SetBaseLocation) Replace() bool {
	return a.ReplaceExisting == nil || *a.ReplaceExisting
}

// MoveDestination moves a destination between (or within) days of one trip.
type MoveDestination struct {
	DestinationID string `json:"destinationId"`
	FromDayID     string `json:"fromDayId"`
	ToDayID       string `json:"toDayId"`
	InsertIndex   *int   `json:"insertIndex,omitempty"`
}

func (MoveDestination) ActionType() Type { return TypeMoveDestination }

// Overlay is the closed set of toggleable map overlays.
type Overlay string

const (
	OverlayAllDestinations Overlay = "all_destinations"
	OverlayExploreMarkers  Overlay = "explore_markers"
	OverlayDayRoutes       Overlay = "day_routes"
)

// ToggleMapOverlay is a view-state action; it has no ownership chain.
type ToggleMapOverlay struct {
	Overlay Overlay        `json:"overlay"`
	Enabled *bool          `json:"enabled,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (ToggleMapOverlay) ActionType() Type { return TypeToggleMapOverlay }

// AddPlaceToItinerary is the assistant-proposed add. Lat/Lng must be
// both-present-or-both-absent. Confidence is on the [0,1] wire scale.
type AddPlaceToItinerary struct {
	PlaceID         string   `json:"placeId,omitempty"`
	FallbackQuery   string   `json:"fallbackQuery"`
	TripID          string   `json:"tripId"`
	DayID           string   `json:"dayId"`
	StartTime       string   `json:"startTime"`
	DurationMinutes int      `json:"durationMinutes"`
	Source          string   `json:"source"`
	Confidence      float64  `json:"confidence"`
	Notes           string   `json:"notes,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
}

func (AddPlaceToItinerary) ActionType() Type { return TypeAddPlaceToItinerary }

// RescheduleItineraryItem moves and/or retimes an existing item. When the
// item carries locked-dependency markers the caller must confirm explicitly.
type RescheduleItineraryItem struct {
	TripID             string   `json:"tripId"`
	DayID              string   `json:"dayId"`
	ItemID             string   `json:"itemId"`
	NewDayID           string   `json:"newDayId"`
	NewStartTime       string   `json:"newStartTime"`
	NewDurationMinutes int      `json:"newDurationMinutes"`
	LockedDependencies []string `json:"lockedDependencies,omitempty"`
	UserConfirmed      bool     `json:"userConfirmed,omitempty"`
}

func (RescheduleItineraryItem) ActionType() Type { return TypeRescheduleItineraryItem }

// ReplacementSpec describes the item substituted on a replace.
type ReplacementSpec struct {
	PlaceID         string   `json:"placeId,omitempty"`
	FallbackQuery   string   `json:"fallbackQuery"`
	StartTime       string   `json:"startTime,omitempty"`
	DurationMinutes *int     `json:"durationMinutes,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
}

// RemoveOrReplaceItem removes an item, or swaps it for a replacement at the
// same position. Execution always requires userConfirmed=true.
type RemoveOrReplaceItem struct {
	TripID        string           `json:"tripId"`
	DayID         string           `json:"dayId"`
	ItemID        string           `json:"itemId"`
	Mode          string           `json:"mode"` // "remove" or "replace"
	UserConfirmed bool             `json:"userConfirmed,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Replacement   *ReplacementSpec `json:"replacement,omitempty"`
}

func (RemoveOrReplaceItem) ActionType() Type { return TypeRemoveOrReplaceItem }
