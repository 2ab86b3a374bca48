// Package preview turns a validated, authorized action into a
// human-readable summary plus a machine-readable detail map, without
// mutating anything. The result is shown to the user before execution;
// auditing happens a layer above as fire-and-forget logging.
package preview

import (
	"fmt"
	"strings"

	"github.com/Thepalm86/trip-sub001/internal/action"
	"github.com/Thepalm86/trip-sub001/internal/schedule"
)

// Context carries the human-readable labels resolved by the caller. Any
// empty label falls back to the raw identifier in the summary.
type Context struct {
	DayLabel       string
	TargetDayLabel string
	ItemLabel      string
}

// Preview is the confirmation prompt for a single action.
type Preview struct {
	Summary              string         `json:"summary"`
	RequiresConfirmation bool           `json:"requiresConfirmation"`
	Action               action.Type    `json:"action"`
	Details              map[string]any `json:"details"`
}

// Build produces the preview for one action. Every currently defined action
// type requires confirmation; a future type that wants to skip confirmation
// must set the flag explicitly in its own case rather than inherit a
// default.
func Build(env action.Envelope, pctx Context) Preview {
	p := Preview{
		RequiresConfirmation: true,
		Action:               env.Intent.ActionType(),
		Details:              map[string]any{},
	}

	switch a := env.Intent.(type) {
	case action.AddDestination:
		day := fallback(pctx.DayLabel, a.DayID)
		p.Summary = fmt.Sprintf("Add %q to %s", a.Destination.Name, day)
		if a.Destination.StartTimeIso != "" {
			if minute, err := schedule.ParseClock(a.Destination.StartTimeIso); err == nil {
				p.Summary += " at " + schedule.FormatMinute(minute)
			}
		}
		p.Details["dayId"] = a.DayID
		p.Details["name"] = a.Destination.Name
		if a.Destination.Coordinates != nil {
			p.Details["coordinates"] = *a.Destination.Coordinates
		}

	case action.UpdateDestination:
		item := fallback(pctx.ItemLabel, a.DestinationID)
		p.Summary = fmt.Sprintf("Update %s on %s (%s)",
			item, fallback(pctx.DayLabel, a.DayID), strings.Join(changedFields(a.Changes), ", "))
		p.Details["dayId"] = a.DayID
		p.Details["destinationId"] = a.DestinationID
		p.Details["fields"] = changedFields(a.Changes)

	case action.SetBaseLocation:
		day := fallback(pctx.DayLabel, a.DayID)
		verb := "Add"
		if a.Replace() {
			verb = "Set"
		}
		p.Summary = fmt.Sprintf("%s base location %q for %s", verb, a.Location.Name, day)
		p.Details["dayId"] = a.DayID
		p.Details["name"] = a.Location.Name
		p.Details["replaceExisting"] = a.Replace()

	case action.MoveDestination:
		p.Summary = fmt.Sprintf("Move %s from %s to %s",
			fallback(pctx.ItemLabel, a.DestinationID),
			fallback(pctx.DayLabel, a.FromDayID),
			fallback(pctx.TargetDayLabel, a.ToDayID))
		p.Details["destinationId"] = a.DestinationID
		p.Details["fromDayId"] = a.FromDayID
		p.Details["toDayId"] = a.ToDayID

	case action.ToggleMapOverlay:
		state := "Toggle"
		if a.Enabled != nil {
			if *a.Enabled {
				state = "Show"
			} else {
				state = "Hide"
			}
		}
		p.Summary = fmt.Sprintf("%s the %s overlay", state, overlayName(a.Overlay))
		p.Details["overlay"] = string(a.Overlay)

	case action.AddPlaceToItinerary:
		day := fallback(pctx.DayLabel, a.DayID)
		p.Summary = fmt.Sprintf("Add %q to %s", a.FallbackQuery, day)
		if minute, err := schedule.ParseClock(a.StartTime); err == nil {
			p.Summary += " at " + schedule.FormatMinute(minute)
		}
		p.Details["dayId"] = a.DayID
		p.Details["query"] = a.FallbackQuery
		p.Details["confidence"] = a.Confidence

	case action.RescheduleItineraryItem:
		p.Summary = fmt.Sprintf("Reschedule %s to %s",
			fallback(pctx.ItemLabel, a.ItemID),
			fallback(pctx.TargetDayLabel, a.NewDayID))
		if minute, err := schedule.ParseClock(a.NewStartTime); err == nil {
			p.Summary += " at " + schedule.FormatMinute(minute)
		}
		if len(a.LockedDependencies) > 0 {
			p.Summary += fmt.Sprintf(" (locked: %s)", strings.Join(a.LockedDependencies, ", "))
		}
		p.Details["itemId"] = a.ItemID
		p.Details["newDayId"] = a.NewDayID
		p.Details["lockedDependencies"] = a.LockedDependencies

	case action.RemoveOrReplaceItem:
		item := fallback(pctx.ItemLabel, a.ItemID)
		if a.Mode == "replace" && a.Replacement != nil {
			p.Summary = fmt.Sprintf("Replace %s with %q", item, a.Replacement.FallbackQuery)
			p.Details["replacement"] = a.Replacement.FallbackQuery
		} else {
			p.Summary = fmt.Sprintf("Remove %s from %s", item, fallback(pctx.DayLabel, a.DayID))
		}
		p.Details["itemId"] = a.ItemID
		p.Details["mode"] = a.Mode

	default:
		p.Summary = string(env.Intent.ActionType())
	}

	if env.Meta != nil && env.Meta.Rationale != "" {
		p.Details["rationale"] = env.Meta.Rationale
	}

	return p
}

func changedFields(c action.DestinationChanges) []string {
	var fields []string
	if c.Name != nil {
		fields = append(fields, "name")
	}
	if c.Category != nil {
		fields = append(fields, "category")
	}
	if c.City != nil {
		fields = append(fields, "city")
	}
	if c.Notes != nil {
		fields = append(fields, "notes")
	}
	if c.Coordinates != nil {
		fields = append(fields, "coordinates")
	}
	if c.EstimatedDurationMinutes != nil {
		fields = append(fields, "estimatedDurationMinutes")
	}
	if c.StartTimeIso != nil {
		fields = append(fields, "startTimeIso")
	}
	if c.EndTimeIso != nil {
		fields = append(fields, "endTimeIso")
	}
	if c.Links != nil {
		fields = append(fields, "links")
	}
	return fields
}

func fallback(label, raw string) string {
	if label != "" {
		return label
	}
	return raw
}

func overlayName(o action.Overlay) string {
	switch o {
	case action.OverlayAllDestinations:
		return "all destinations"
	case action.OverlayExploreMarkers:
		return "explore markers"
	case action.OverlayDayRoutes:
		return "day routes"
	}
	return string(o)
}
