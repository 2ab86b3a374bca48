package action

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Thepalm86/trip-sub001/internal/models"
	"github.com/Thepalm86/trip-sub001/internal/schedule"
)

// TempIDPrefix marks client-side draft identifiers that have not been
// persisted yet.
const TempIDPrefix = "temp-"

// Parse narrows an arbitrary JSON value into a typed, validated Envelope.
// On failure it returns a *models.ValidationError enumerating every violated
// constraint; it never returns a partially valid intent.
func Parse(raw json.RawMessage) (Envelope, error) {
	var head struct {
		Type Type  `json:"type"`
		Meta *Meta `json:"meta,omitempty"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Envelope{}, &models.ValidationError{Violations: []models.FieldViolation{
			{Field: "payload", Reason: "not a JSON object: " + err.Error()},
		}}
	}

	intent, ok := newIntent(head.Type)
	if !ok {
		return Envelope{}, &models.ValidationError{Violations: []models.FieldViolation{
			{Field: "type", Reason: fmt.Sprintf("unknown action type %q", head.Type)},
		}}
	}

	if err := json.Unmarshal(raw, intent); err != nil {
		return Envelope{}, &models.ValidationError{Violations: []models.FieldViolation{
			{Field: "payload", Reason: err.Error()},
		}}
	}

	env := Envelope{Intent: deref(intent), Meta: head.Meta}
	violations := validate(env.Intent)
	violations = append(violations, validateMeta(head.Meta)...)
	if len(violations) > 0 {
		return Envelope{}, &models.ValidationError{Violations: violations}
	}
	return env, nil
}

// newIntent maps a discriminant to an empty payload of the right shape.
// Unknown discriminants fail; the set of action types is closed.
func newIntent(t Type) (any, bool) {
	switch t {
	case TypeAddDestination:
		return &AddDestination{}, true
	case TypeUpdateDestination:
		return &UpdateDestination{}, true
	case TypeSetBaseLocation:
		return &SetBaseLocation{}, true
	case TypeMoveDestination:
		return &MoveDestination{}, true
	case TypeToggleMapOverlay:
		return &ToggleMapOverlay{}, true
	case TypeAddPlaceToItinerary:
		return &AddPlaceToItinerary{}, true
	case TypeRescheduleItineraryItem:
		return &RescheduleItineraryItem{}, true
	case TypeRemoveOrReplaceItem:
		return &RemoveOrReplaceItem{}, true
	}
	return nil, false
}

func deref(intent any) Intent {
	switch v := intent.(type) {
	case *AddDestination:
		return *v
	case *UpdateDestination:
		return *v
	case *SetBaseLocation:
		return *v
	case *MoveDestination:
		return *v
	case *ToggleMapOverlay:
		return *v
	case *AddPlaceToItinerary:
		return *v
	case *RescheduleItineraryItem:
		return *v
	case *RemoveOrReplaceItem:
		return *v
	}
	panic(fmt.Sprintf("unhandled intent %T", intent))
}

func validate(intent Intent) []models.FieldViolation {
	var v violations
	switch a := intent.(type) {
	case AddDestination:
		v.requireID("dayId", a.DayID)
		v.require("destination.name", a.Destination.Name != "", "name is required")
		v.clock("destination.startTimeIso", a.Destination.StartTimeIso)
		v.clock("destination.endTimeIso", a.Destination.EndTimeIso)
		v.positive("destination.estimatedDurationMinutes", a.Destination.EstimatedDurationMinutes)
		v.nonNegative("insertIndex", a.InsertIndex)
	case UpdateDestination:
		v.requireID("dayId", a.DayID)
		v.itemID("destinationId", a.DestinationID)
		v.require("changes", !a.Changes.Empty(), "at least one change is required")
		if a.Changes.StartTimeIso != nil {
			v.clock("changes.startTimeIso", *a.Changes.StartTimeIso)
		}
		if a.Changes.EndTimeIso != nil {
			v.clock("changes.endTimeIso", *a.Changes.EndTimeIso)
		}
		v.positive("changes.estimatedDurationMinutes", a.Changes.EstimatedDurationMinutes)
	case SetBaseLocation:
		v.requireID("dayId", a.DayID)
		v.require("location.name", a.Location.Name != "", "name is required")
		v.nonNegative("locationIndex", a.LocationIndex)
	case MoveDestination:
		v.itemID("destinationId", a.DestinationID)
		v.requireID("fromDayId", a.FromDayID)
		v.requireID("toDayId", a.ToDayID)
		v.nonNegative("insertIndex", a.InsertIndex)
	case ToggleMapOverlay:
		switch a.Overlay {
		case OverlayAllDestinations, OverlayExploreMarkers, OverlayDayRoutes:
		default:
			v.add("overlay", fmt.Sprintf("unknown overlay %q", a.Overlay))
		}
	case AddPlaceToItinerary:
		v.require("fallbackQuery", a.FallbackQuery != "", "fallbackQuery is required")
		v.requireID("tripId", a.TripID)
		v.requireID("dayId", a.DayID)
		v.require("startTime", a.StartTime != "", "startTime is required")
		v.clock("startTime", a.StartTime)
		v.require("durationMinutes", a.DurationMinutes > 0, "must be a positive integer")
		v.require("source", a.Source == "" || a.Source == "assistant", `must be "assistant"`)
		v.require("confidence", a.Confidence >= 0 && a.Confidence <= 1, "must be within [0,1]")
		v.coordinatePair("lat", a.Lat, a.Lng)
	case RescheduleItineraryItem:
		v.requireID("tripId", a.TripID)
		v.requireID("dayId", a.DayID)
		v.itemID("itemId", a.ItemID)
		v.requireID("newDayId", a.NewDayID)
		v.require("newStartTime", a.NewStartTime != "", "newStartTime is required")
		v.clock("newStartTime", a.NewStartTime)
		v.require("newDurationMinutes", a.NewDurationMinutes > 0, "must be a positive integer")
	case RemoveOrReplaceItem:
		v.requireID("tripId", a.TripID)
		v.requireID("dayId", a.DayID)
		v.itemID("itemId", a.ItemID)
		switch a.Mode {
		case "remove":
			// A replacement descriptor on a remove is ignored, not rejected.
		case "replace":
			if a.Replacement == nil {
				v.add("replacement", "required when mode is replace")
			} else {
				v.require("replacement.fallbackQuery", a.Replacement.FallbackQuery != "", "fallbackQuery is required")
				v.clock("replacement.startTime", a.Replacement.StartTime)
				v.positive("replacement.durationMinutes", a.Replacement.DurationMinutes)
				v.coordinatePair("replacement.lat", a.Replacement.Lat, a.Replacement.Lng)
			}
		default:
			v.add("mode", fmt.Sprintf("must be remove or replace, got %q", a.Mode))
		}
	}
	return v.list
}

func validateMeta(m *Meta) []models.FieldViolation {
	if m == nil {
		return nil
	}
	var v violations
	if m.Confidence != nil {
		v.require("meta.confidence", *m.Confidence >= 0 && *m.Confidence <= 1, "must be within [0,1]")
	}
	return v.list
}

type violations struct {
	list []models.FieldViolation
}

func (v *violations) add(field, reason string) {
	v.list = append(v.list, models.FieldViolation{Field: field, Reason: reason})
}

func (v *violations) require(field string, ok bool, reason string) {
	if !ok {
		v.add(field, reason)
	}
}

func (v *violations) requireID(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "identifier must be a non-empty string")
	}
}

// itemID accepts canonical unique ids and the temp- draft pattern used for
// not-yet-persisted client-side items.
func (v *violations) itemID(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "identifier must be a non-empty string")
		return
	}
	if strings.HasPrefix(value, TempIDPrefix) {
		return
	}
	if _, err := uuid.Parse(value); err != nil {
		v.add(field, "must be a canonical id or a temp- draft id")
	}
}

func (v *violations) clock(field, value string) {
	if value == "" {
		return
	}
	if _, err := schedule.ParseClock(value); err != nil {
		v.add(field, "must be an RFC 3339 date-time or HH:MM time")
	}
}

func (v *violations) positive(field string, value *int) {
	if value != nil && *value <= 0 {
		v.add(field, "must be a positive integer")
	}
}

func (v *violations) nonNegative(field string, value *int) {
	if value != nil && *value < 0 {
		v.add(field, "must not be negative")
	}
}

// coordinatePair enforces that lat/lng arrive as a complete pair or not at
// all. Field is the lat field path; the lng path is derived from it.
func (v *violations) coordinatePair(field string, lat, lng *float64) {
	if (lat == nil) != (lng == nil) {
		v.add(field, "lat and lng must be provided together")
		return
	}
	if lat != nil {
		v.require(field, *lat >= -90 && *lat <= 90, "latitude out of range")
		v.require(strings.TrimSuffix(field, "lat")+"lng", *lng >= -180 && *lng <= 180, "longitude out of range")
	}
}
