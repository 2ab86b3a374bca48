// Package mirror replays the dispatcher's action vocabulary against an
// in-memory copy of one trip's itinerary, so a client view can reflect
// results immediately while the authoritative copy is persisted server-side.
//
// The mirror deliberately reuses the same schedule codec and insertion
// algorithm as the server path; any divergence between the two orderings is
// a correctness bug, not a styling difference. It assumes the actions it
// receives have already cleared the dispatcher's confirmation and ownership
// gates, and instead of reaching into UI state it emits before/after deltas
// for the view layer to subscribe to.
package mirror

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Thepalm86/trip-sub001/internal/action"
	"github.com/Thepalm86/trip-sub001/internal/models"
	"github.com/Thepalm86/trip-sub001/internal/schedule"
)

// Itinerary is the local, already-loaded copy of one trip.
type Itinerary struct {
	Trip models.Trip
	Days []DayState
}

// DayState holds a day's ordered content.
type DayState struct {
	Day           models.Day
	Destinations  []models.Destination
	BaseLocations []models.BaseLocation
}

// Delta describes one entity transition caused by an applied action. A nil
// Before is a creation, a nil After a removal.
type Delta struct {
	Entity string `json:"entity"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// Selection is the currently focused day/item, updated opportunistically
// after successful mutations.
type Selection struct {
	DayID         string
	DestinationID string
}

// Mirror applies actions to a local itinerary copy.
type Mirror struct {
	itinerary *Itinerary
	selection Selection
	overlays  map[action.Overlay]bool
}

// New creates a mirror over the given itinerary copy.
func New(itinerary *Itinerary) *Mirror {
	return &Mirror{
		itinerary: itinerary,
		overlays:  map[action.Overlay]bool{},
	}
}

// Selection returns the current focus.
func (m *Mirror) Selection() Selection { return m.selection }

// OverlayEnabled reports the local state of a map overlay.
func (m *Mirror) OverlayEnabled(o action.Overlay) bool { return m.overlays[o] }

// Day returns the local state for a day id, or nil.
func (m *Mirror) Day(dayID string) *DayState {
	for i := range m.itinerary.Days {
		if m.itinerary.Days[i].Day.ID == dayID {
			return &m.itinerary.Days[i]
		}
	}
	return nil
}

// Apply mutates the local copy according to one action and returns the
// resulting deltas.
func (m *Mirror) Apply(env action.Envelope) ([]Delta, error) {
	switch a := env.Intent.(type) {
	case action.AddDestination:
		return m.applyAdd(a)
	case action.UpdateDestination:
		return m.applyUpdate(a)
	case action.SetBaseLocation:
		return m.applySetBase(a)
	case action.MoveDestination:
		return m.applyMove(a.DestinationID, a.FromDayID, a.ToDayID, a.InsertIndex, nil)
	case action.ToggleMapOverlay:
		return m.applyToggle(a), nil
	case action.AddPlaceToItinerary:
		return m.applyAdd(a.ToAddDestination())
	case action.RescheduleItineraryItem:
		return m.applyReschedule(a)
	case action.RemoveOrReplaceItem:
		return m.applyRemoveOrReplace(a)
	}
	return nil, fmt.Errorf("unhandled action type %s", env.Intent.ActionType())
}

func (m *Mirror) applyAdd(a action.AddDestination) ([]Delta, error) {
	day := m.Day(a.DayID)
	if day == nil {
		return nil, models.NewNotFound("day", a.DayID)
	}

	ann := schedule.Annotation{DurationMinutes: a.Destination.EstimatedDurationMinutes}
	if a.Destination.StartTimeIso != "" {
		if minute, err := schedule.ParseClock(a.Destination.StartTimeIso); err == nil {
			ann.StartMinute = &minute
		}
	}

	index := schedule.InsertionIndex(slots(day.Destinations), ann.StartMinute, "")
	if a.InsertIndex != nil {
		index = clamp(*a.InsertIndex, len(day.Destinations))
	}

	dest := models.Destination{
		ID:              action.TempIDPrefix + uuid.New().String(),
		DayID:           a.DayID,
		Name:            a.Destination.Name,
		Category:        a.Destination.Category,
		City:            a.Destination.City,
		Coordinates:     a.Destination.Coordinates,
		DurationMinutes: a.Destination.EstimatedDurationMinutes,
		Notes:           schedule.Encode(a.Destination.Notes, ann),
		Links:           a.Destination.Links,
	}

	day.Destinations = append(day.Destinations[:index],
		append([]models.Destination{dest}, day.Destinations[index:]...)...)
	renumber(day)

	m.focusByShape(a.DayID, dest.Name, dest.Coordinates)
	return []Delta{{Entity: "destination", After: day.Destinations[index]}}, nil
}

func (m *Mirror) applyUpdate(a action.UpdateDestination) ([]Delta, error) {
	day := m.Day(a.DayID)
	if day == nil {
		return nil, models.NewNotFound("day", a.DayID)
	}
	i := indexOf(day.Destinations, a.DestinationID)
	if i < 0 {
		return nil, models.NewNotFound("destination", a.DestinationID)
	}

	before := day.Destinations[i]
	dest := &day.Destinations[i]
	ann := schedule.Decode(dest.Notes)
	userNotes := schedule.Strip(dest.Notes)

	c := a.Changes
	if c.Name != nil {
		dest.Name = *c.Name
	}
	if c.Category != nil {
		dest.Category = *c.Category
	}
	if c.City != nil {
		dest.City = *c.City
	}
	if c.Coordinates != nil {
		dest.Coordinates = c.Coordinates
	}
	if c.Links != nil {
		dest.Links = c.Links
	}
	if c.Notes != nil {
		userNotes = *c.Notes
	}
	if c.EstimatedDurationMinutes != nil {
		dest.DurationMinutes = c.EstimatedDurationMinutes
		ann.DurationMinutes = c.EstimatedDurationMinutes
	}
	if c.StartTimeIso != nil {
		if minute, err := schedule.ParseClock(*c.StartTimeIso); err == nil {
			ann.StartMinute = &minute
		}
	}
	dest.Notes = schedule.Encode(userNotes, ann)

	return []Delta{{Entity: "destination", Before: before, After: *dest}}, nil
}

func (m *Mirror) applySetBase(a action.SetBaseLocation) ([]Delta, error) {
	day := m.Day(a.DayID)
	if day == nil {
		return nil, models.NewNotFound("day", a.DayID)
	}

	loc := models.BaseLocation{
		ID:          action.TempIDPrefix + uuid.New().String(),
		DayID:       a.DayID,
		Name:        a.Location.Name,
		Coordinates: a.Location.Coordinates,
		Context:     a.Location.Context,
		Notes:       a.Location.Notes,
		Links:       a.Location.Links,
	}

	deltas := []Delta{}
	if a.Replace() {
		for _, old := range day.BaseLocations {
			if a.LocationIndex != nil && old.OrderIndex != *a.LocationIndex {
				continue
			}
			deltas = append(deltas, Delta{Entity: "base_location", Before: old})
		}
		if a.LocationIndex != nil {
			day.BaseLocations = lo.Filter(day.BaseLocations, func(b models.BaseLocation, _ int) bool {
				return b.OrderIndex != *a.LocationIndex
			})
			loc.OrderIndex = *a.LocationIndex
		} else {
			day.BaseLocations = day.BaseLocations[:0]
		}
	} else {
		loc.OrderIndex = len(day.BaseLocations)
	}
	day.BaseLocations = append(day.BaseLocations, loc)

	return append(deltas, Delta{Entity: "base_location", After: loc}), nil
}

func (m *Mirror) applyMove(destID, fromDayID, toDayID string, insertIndex *int, startMinute *int) ([]Delta, error) {
	from := m.Day(fromDayID)
	if from == nil {
		return nil, models.NewNotFound("day", fromDayID)
	}
	to := m.Day(toDayID)
	if to == nil {
		return nil, models.NewNotFound("day", toDayID)
	}

	i := indexOf(from.Destinations, destID)
	if i < 0 {
		return nil, models.NewNotFound("destination", destID)
	}

	before := from.Destinations[i]
	moved := before
	from.Destinations = append(from.Destinations[:i], from.Destinations[i+1:]...)
	renumber(from)

	desired := startMinute
	if desired == nil {
		ann := schedule.Decode(moved.Notes)
		desired = ann.StartMinute
	}
	index := schedule.InsertionIndex(slots(to.Destinations), desired, destID)
	if insertIndex != nil {
		index = clamp(*insertIndex, len(to.Destinations))
	}

	moved.DayID = toDayID
	to.Destinations = append(to.Destinations[:index],
		append([]models.Destination{moved}, to.Destinations[index:]...)...)
	renumber(to)

	m.focusByShape(toDayID, moved.Name, moved.Coordinates)
	return []Delta{{Entity: "destination", Before: before, After: to.Destinations[index]}}, nil
}

func (m *Mirror) applyToggle(a action.ToggleMapOverlay) []Delta {
	before := m.overlays[a.Overlay]
	after := !before
	if a.Enabled != nil {
		after = *a.Enabled
	}
	m.overlays[a.Overlay] = after
	return []Delta{{Entity: "overlay", Before: before, After: after}}
}

func (m *Mirror) applyReschedule(a action.RescheduleItineraryItem) ([]Delta, error) {
	day := m.Day(a.DayID)
	if day == nil {
		return nil, models.NewNotFound("day", a.DayID)
	}
	i := indexOf(day.Destinations, a.ItemID)
	if i < 0 {
		return nil, models.NewNotFound("destination", a.ItemID)
	}

	minute, err := schedule.ParseClock(a.NewStartTime)
	if err != nil {
		return nil, err
	}
	duration := a.NewDurationMinutes

	dest := &day.Destinations[i]
	ann := schedule.Decode(dest.Notes)
	ann.StartMinute = &minute
	ann.DurationMinutes = &duration
	dest.DurationMinutes = &duration
	dest.Notes = schedule.Encode(schedule.Strip(dest.Notes), ann)

	return m.applyMove(a.ItemID, a.DayID, a.NewDayID, nil, &minute)
}

func (m *Mirror) applyRemoveOrReplace(a action.RemoveOrReplaceItem) ([]Delta, error) {
	day := m.Day(a.DayID)
	if day == nil {
		return nil, models.NewNotFound("day", a.DayID)
	}
	i := indexOf(day.Destinations, a.ItemID)
	if i < 0 {
		return nil, models.NewNotFound("destination", a.ItemID)
	}

	before := day.Destinations[i]
	if a.Mode == "remove" || a.Replacement == nil {
		day.Destinations = append(day.Destinations[:i], day.Destinations[i+1:]...)
		renumber(day)
		if m.selection.DestinationID == a.ItemID {
			m.selection = Selection{DayID: a.DayID}
		}
		return []Delta{{Entity: "destination", Before: before}}, nil
	}

	spec := a.Replacement.ToDestinationSpec()
	ann := schedule.Annotation{DurationMinutes: spec.EstimatedDurationMinutes}
	if spec.StartTimeIso != "" {
		if minute, err := schedule.ParseClock(spec.StartTimeIso); err == nil {
			ann.StartMinute = &minute
		}
	}
	if ann.StartMinute == nil {
		old := schedule.Decode(before.Notes)
		ann.StartMinute = old.StartMinute
		if ann.DurationMinutes == nil {
			ann.DurationMinutes = old.DurationMinutes
		}
		ann.Confidence = old.Confidence
	}

	day.Destinations[i] = models.Destination{
		ID:              action.TempIDPrefix + uuid.New().String(),
		DayID:           a.DayID,
		OrderIndex:      before.OrderIndex,
		Name:            spec.Name,
		Coordinates:     spec.Coordinates,
		DurationMinutes: ann.DurationMinutes,
		Notes:           schedule.Encode(spec.Notes, ann),
	}

	m.focusByShape(a.DayID, spec.Name, spec.Coordinates)
	return []Delta{{Entity: "destination", Before: before, After: day.Destinations[i]}}, nil
}

// focusByShape selects the most recently inserted/moved item by structural
// match (name plus coordinates) when the authoritative id is not yet known.
func (m *Mirror) focusByShape(dayID, name string, coords *models.Coordinates) {
	day := m.Day(dayID)
	if day == nil {
		return
	}
	match, ok := lo.Find(day.Destinations, func(d models.Destination) bool {
		if d.Name != name {
			return false
		}
		if coords == nil || d.Coordinates == nil {
			return coords == nil && d.Coordinates == nil
		}
		return d.Coordinates.Lat == coords.Lat && d.Coordinates.Lng == coords.Lng
	})
	if ok {
		m.selection = Selection{DayID: dayID, DestinationID: match.ID}
	}
}

func slots(destinations []models.Destination) []schedule.Slot {
	return lo.Map(destinations, func(dest models.Destination, _ int) schedule.Slot {
		ann := schedule.Decode(dest.Notes)
		return schedule.Slot{ID: dest.ID, StartMinute: ann.StartMinute}
	})
}

func indexOf(destinations []models.Destination, id string) int {
	_, i, ok := lo.FindIndexOf(destinations, func(d models.Destination) bool { return d.ID == id })
	if !ok {
		return -1
	}
	return i
}

func renumber(day *DayState) {
	for i := range day.Destinations {
		day.Destinations[i].OrderIndex = i
	}
}

func clamp(index, max int) int {
	if index < 0 {
		return 0
	}
	if index > max {
		return max
	}
	return index
}
