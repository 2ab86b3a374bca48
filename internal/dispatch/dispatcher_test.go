package dispatch

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thepalm86/trip-sub001/internal/access"
	"github.com/Thepalm86/trip-sub001/internal/action"
	"github.com/Thepalm86/trip-sub001/internal/models"
	"github.com/Thepalm86/trip-sub001/internal/schedule"
)

// fakeRepo is an in-memory database.Repository with the same ordering
// semantics as the Postgres implementation: contiguous order_index per day,
// shift on insert/delete, same-slot replace.
type fakeRepo struct {
	trips         map[string]*models.Trip
	days          map[string]*models.Day
	destinations  map[string]*models.Destination
	baseLocations map[string][]models.BaseLocation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		trips:         map[string]*models.Trip{},
		days:          map[string]*models.Day{},
		destinations:  map[string]*models.Destination{},
		baseLocations: map[string][]models.BaseLocation{},
	}
}

func (f *fakeRepo) GetTrip(_ context.Context, id string) (*models.Trip, error) {
	if t, ok := f.trips[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRepo) GetDay(_ context.Context, id string) (*models.Day, error) {
	if d, ok := f.days[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRepo) GetDestination(_ context.Context, id string) (*models.Destination, error) {
	if d, ok := f.destinations[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRepo) ListDestinations(_ context.Context, dayID string) ([]models.Destination, error) {
	var out []models.Destination
	for _, d := range f.destinations {
		if d.DayID == dayID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (f *fakeRepo) InsertDestination(_ context.Context, dest *models.Destination) error {
	count := f.dayCount(dest.DayID)
	if dest.OrderIndex < 0 {
		dest.OrderIndex = 0
	}
	if dest.OrderIndex > count {
		dest.OrderIndex = count
	}
	for _, d := range f.destinations {
		if d.DayID == dest.DayID && d.OrderIndex >= dest.OrderIndex {
			d.OrderIndex++
		}
	}
	cp := *dest
	f.destinations[dest.ID] = &cp
	return nil
}

func (f *fakeRepo) UpdateDestination(_ context.Context, dest *models.Destination) error {
	cp := *dest
	f.destinations[dest.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteDestination(_ context.Context, id string) error {
	gone, ok := f.destinations[id]
	if !ok {
		return nil
	}
	delete(f.destinations, id)
	for _, d := range f.destinations {
		if d.DayID == gone.DayID && d.OrderIndex > gone.OrderIndex {
			d.OrderIndex--
		}
	}
	return nil
}

func (f *fakeRepo) ReplaceDestination(_ context.Context, oldID string, repl *models.Destination) error {
	old, ok := f.destinations[oldID]
	if !ok {
		return nil
	}
	repl.DayID = old.DayID
	repl.OrderIndex = old.OrderIndex
	delete(f.destinations, oldID)
	cp := *repl
	f.destinations[repl.ID] = &cp
	return nil
}

func (f *fakeRepo) MoveDestination(_ context.Context, destID, toDayID string, toIndex int) error {
	moved, ok := f.destinations[destID]
	if !ok {
		return nil
	}
	for _, d := range f.destinations {
		if d.ID != destID && d.DayID == moved.DayID && d.OrderIndex > moved.OrderIndex {
			d.OrderIndex--
		}
	}
	count := 0
	for _, d := range f.destinations {
		if d.ID != destID && d.DayID == toDayID {
			count++
		}
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > count {
		toIndex = count
	}
	for _, d := range f.destinations {
		if d.ID != destID && d.DayID == toDayID && d.OrderIndex >= toIndex {
			d.OrderIndex++
		}
	}
	moved.DayID = toDayID
	moved.OrderIndex = toIndex
	return nil
}

func (f *fakeRepo) ListBaseLocations(_ context.Context, dayID string) ([]models.BaseLocation, error) {
	return append([]models.BaseLocation(nil), f.baseLocations[dayID]...), nil
}

func (f *fakeRepo) SetBaseLocation(_ context.Context, loc *models.BaseLocation, replace bool, locationIndex *int) error {
	existing := f.baseLocations[loc.DayID]
	switch {
	case replace:
		f.baseLocations[loc.DayID] = []models.BaseLocation{*loc}
	case locationIndex != nil && *locationIndex < len(existing):
		existing[*locationIndex] = *loc
	default:
		f.baseLocations[loc.DayID] = append(existing, *loc)
	}
	return nil
}

func (f *fakeRepo) Close() {}

func (f *fakeRepo) dayCount(dayID string) int {
	n := 0
	for _, d := range f.destinations {
		if d.DayID == dayID {
			n++
		}
	}
	return n
}

// rememberingStore reports duplicates for ids it has seen before.
type rememberingStore struct {
	seen map[string]bool
}

func (s *rememberingStore) FirstUse(_ context.Context, requestID string) bool {
	if s.seen[requestID] {
		return false
	}
	s.seen[requestID] = true
	return true
}

func (s *rememberingStore) Close() error { return nil }

func seedDestination(repo *fakeRepo, id, dayID string, index int, name string, startMinute *int) {
	repo.destinations[id] = &models.Destination{
		ID:         id,
		DayID:      dayID,
		OrderIndex: index,
		Name:       name,
		Notes:      schedule.Encode("", schedule.Annotation{StartMinute: startMinute}),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

func setupDispatcher(t *testing.T, minConfidence float64) (*Dispatcher, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	repo.trips["trip-1"] = &models.Trip{ID: "trip-1", UserID: "user-1", Name: "Rome"}
	repo.trips["trip-2"] = &models.Trip{ID: "trip-2", UserID: "user-2", Name: "Paris"}
	repo.days["day-1"] = &models.Day{ID: "day-1", TripID: "trip-1", DayIndex: 0, Date: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)}
	repo.days["day-2"] = &models.Day{ID: "day-2", TripID: "trip-1", DayIndex: 1, Date: time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC)}
	repo.days["day-3"] = &models.Day{ID: "day-3", TripID: "trip-2", DayIndex: 0, Date: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}

	logger, _ := zap.NewDevelopment()
	resolver := access.NewResolver(repo, logger)
	return NewDispatcher(repo, resolver, NoopIdempotencyStore{}, logger, minConfidence), repo
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func intPtr(v int) *int { return &v }

func dayOrder(t *testing.T, repo *fakeRepo, dayID string) []string {
	t.Helper()
	dests, err := repo.ListDestinations(context.Background(), dayID)
	require.NoError(t, err)
	names := make([]string, len(dests))
	for i, d := range dests {
		assert.Equal(t, i, d.OrderIndex)
		names[i] = d.Name
	}
	return names
}

func TestDispatch_AddWithoutTimeAppends(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "dest-a", "day-1", 0, "Colosseum", intPtr(9*60))
	seedDestination(repo, "dest-b", "day-1", 1, "Vatican", intPtr(13*60))

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {"name": "Trastevere", "coordinates": {"lat": 41.88, "lng": 12.47}}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, []string{"Colosseum", "Vatican", "Trastevere"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_AddWithTimeSortsIntoTimeline(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "dest-a", "day-1", 0, "Colosseum", intPtr(9*60))
	seedDestination(repo, "dest-b", "day-1", 1, "Vatican", intPtr(13*60))

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {
			"name": "Pantheon",
			"startTimeIso": "10:00",
			"coordinates": {"lat": 41.898, "lng": 12.476}
		}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, []string{"Colosseum", "Pantheon", "Vatican"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_AddTiedStartInsertsBeforeEqual(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "dest-a", "day-1", 0, "Colosseum", intPtr(9*60))
	seedDestination(repo, "dest-b", "day-1", 1, "Vatican", intPtr(13*60))

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {
			"name": "Forum",
			"startTimeIso": "13:00",
			"coordinates": {"lat": 41.89, "lng": 12.49}
		}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, []string{"Colosseum", "Forum", "Vatican"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_AddWithoutCoordinatesSkipped(t *testing.T) {
	d, repo := setupDispatcher(t, 0)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {"name": "Somewhere"}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, "missing coordinates", results[0].Reason)
	assert.Empty(t, dayOrder(t, repo, "day-1"))
}

func TestDispatch_UnknownDayIsSkippedNotFailed(t *testing.T) {
	d, _ := setupDispatcher(t, 0)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-nope",
		"destination": {"name": "Somewhere", "coordinates": {"lat": 1, "lng": 2}}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Contains(t, results[0].Reason, "unknown day id day-nope")
}

func TestDispatch_ForeignDayIsFailed(t *testing.T) {
	d, _ := setupDispatcher(t, 0)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-3",
		"destination": {"name": "Louvre", "coordinates": {"lat": 48.86, "lng": 2.33}}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
}

func TestDispatch_WhollyInvalidBatchRejected(t *testing.T) {
	d, _ := setupDispatcher(t, 0)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{
		raw(`{"type": "NoSuchAction"}`),
		raw(`{"type": "AddDestination"}`),
	}, nil)

	assert.Empty(t, results)
}

func TestDispatch_MixedBatchRunsValidActions(t *testing.T) {
	d, repo := setupDispatcher(t, 0)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{
		raw(`{"type": "NoSuchAction"}`),
		raw(`{
			"type": "AddDestination",
			"dayId": "day-1",
			"destination": {"name": "Pantheon", "coordinates": {"lat": 41.9, "lng": 12.48}}
		}`),
	}, nil)

	require.Len(t, results, 2)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "unknown action type")
	assert.Equal(t, StatusApplied, results[1].Status)
	assert.Equal(t, []string{"Pantheon"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_InBatchDuplicatesDropped(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	dup := `{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {"name": "Pantheon", "coordinates": {"lat": 41.9, "lng": 12.48}},
		"meta": {"requestId": "req-42"}
	}`

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(dup), raw(dup)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, []string{"Pantheon"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_StructuralDuplicatesDroppedWithoutRequestID(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	dup := `{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {"name": "Pantheon", "coordinates": {"lat": 41.9, "lng": 12.48}}
	}`

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(dup), raw(dup)}, nil)

	require.Len(t, results, 1)
	assert.Len(t, dayOrder(t, repo, "day-1"), 1)
}

func TestDispatch_CrossBatchRequestIDSkipped(t *testing.T) {
	repo := newFakeRepo()
	repo.trips["trip-1"] = &models.Trip{ID: "trip-1", UserID: "user-1"}
	repo.days["day-1"] = &models.Day{ID: "day-1", TripID: "trip-1"}
	logger, _ := zap.NewDevelopment()
	resolver := access.NewResolver(repo, logger)
	d := NewDispatcher(repo, resolver, &rememberingStore{seen: map[string]bool{}}, logger, 0)

	payload := raw(`{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {"name": "Pantheon", "coordinates": {"lat": 41.9, "lng": 12.48}},
		"meta": {"requestId": "req-42"}
	}`)

	first := d.Dispatch(context.Background(), "user-1", []json.RawMessage{payload}, nil)
	second := d.Dispatch(context.Background(), "user-1", []json.RawMessage{payload}, nil)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, StatusApplied, first[0].Status)
	assert.Equal(t, StatusSkipped, second[0].Status)
	assert.Contains(t, second[0].Reason, "duplicate request req-42")
	assert.Len(t, dayOrder(t, repo, "day-1"), 1)
}

func TestDispatch_ConfidenceGate(t *testing.T) {
	d, repo := setupDispatcher(t, 0.5)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {"name": "Pantheon", "coordinates": {"lat": 41.9, "lng": 12.48}},
		"meta": {"confidence": 0.3}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Contains(t, results[0].Reason, "confidence 0.30 below threshold 0.50")
	assert.Empty(t, dayOrder(t, repo, "day-1"))
}

func TestDispatch_CallMetaConfidenceFallback(t *testing.T) {
	d, _ := setupDispatcher(t, 0.5)
	low := 0.2

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddDestination",
		"dayId": "day-1",
		"destination": {"name": "Pantheon", "coordinates": {"lat": 41.9, "lng": 12.48}}
	}`)}, &action.Meta{Confidence: &low})

	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
}

func TestDispatch_UpdateRewritesAnnotationAndKeepsNotes(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	repo.destinations["11111111-1111-4111-8111-111111111111"] = &models.Destination{
		ID: "11111111-1111-4111-8111-111111111111", DayID: "day-1", OrderIndex: 0,
		Name:  "Colosseum",
		Notes: schedule.Encode("skip the line tickets", schedule.Annotation{StartMinute: intPtr(9 * 60)}),
	}

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "UpdateDestination",
		"dayId": "day-1",
		"destinationId": "11111111-1111-4111-8111-111111111111",
		"changes": {"startTimeIso": "11:30", "estimatedDurationMinutes": 90}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)

	got := repo.destinations["11111111-1111-4111-8111-111111111111"]
	ann := schedule.Decode(got.Notes)
	require.NotNil(t, ann.StartMinute)
	assert.Equal(t, 11*60+30, *ann.StartMinute)
	require.NotNil(t, ann.DurationMinutes)
	assert.Equal(t, 90, *ann.DurationMinutes)
	assert.Equal(t, "skip the line tickets", schedule.Strip(got.Notes))
}

func TestDispatch_MoveKeepsBothDaysContiguous(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", "day-1", 0, "Colosseum", intPtr(9*60))
	seedDestination(repo, "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb", "day-1", 1, "Pantheon", intPtr(11*60))
	seedDestination(repo, "cccccccc-cccc-4ccc-8ccc-cccccccccccc", "day-2", 0, "Vatican", intPtr(10*60))

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "MoveDestination",
		"destinationId": "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
		"fromDayId": "day-1",
		"toDayId": "day-2"
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, []string{"Pantheon"}, dayOrder(t, repo, "day-1"))
	// 09:00 sorts ahead of the 10:00 Vatican slot on the target day.
	assert.Equal(t, []string{"Colosseum", "Vatican"}, dayOrder(t, repo, "day-2"))
}

func TestDispatch_CrossTripMoveFails(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", "day-1", 0, "Colosseum", nil)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "MoveDestination",
		"destinationId": "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
		"fromDayId": "day-1",
		"toDayId": "day-3"
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, []string{"Colosseum"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_ToggleOverlayAlwaysApplies(t *testing.T) {
	d, _ := setupDispatcher(t, 0)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "ToggleMapOverlay", "overlay": "day_routes", "enabled": true
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, "enabled day routes overlay", results[0].Reason)
}

func TestDispatch_AddPlaceTranslatesAndApplies(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "dest-a", "day-1", 0, "Colosseum", intPtr(9*60))

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "AddPlaceToItinerary",
		"fallbackQuery": "Borghese Gallery",
		"tripId": "trip-1",
		"dayId": "day-1",
		"startTime": "08:00",
		"durationMinutes": 120,
		"source": "assistant",
		"confidence": 0.9,
		"lat": 41.914,
		"lng": 12.492
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, []string{"Borghese Gallery", "Colosseum"}, dayOrder(t, repo, "day-1"))

	dests, _ := repo.ListDestinations(context.Background(), "day-1")
	ann := schedule.Decode(dests[0].Notes)
	require.NotNil(t, ann.StartMinute)
	assert.Equal(t, 8*60, *ann.StartMinute)
	require.NotNil(t, ann.Confidence)
	assert.InDelta(t, 0.9, *ann.Confidence, 0.001)
}

func TestDispatch_RescheduleWithLockedDepsNeedsConfirmation(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", "day-1", 0, "Colosseum", intPtr(9*60))
	before := repo.destinations["aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"].Notes

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "RescheduleItineraryItem",
		"tripId": "trip-1",
		"dayId": "day-1",
		"itemId": "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
		"newDayId": "day-2",
		"newStartTime": "15:00",
		"newDurationMinutes": 60,
		"lockedDependencies": ["dinner reservation"]
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Contains(t, results[0].Reason, "locked dependencies (dinner reservation)")
	assert.Equal(t, before, repo.destinations["aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"].Notes)
}

func TestDispatch_ConfirmedRescheduleRetimesAndMoves(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", "day-1", 0, "Colosseum", intPtr(9*60))
	seedDestination(repo, "cccccccc-cccc-4ccc-8ccc-cccccccccccc", "day-2", 0, "Vatican", intPtr(10*60))

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "RescheduleItineraryItem",
		"tripId": "trip-1",
		"dayId": "day-1",
		"itemId": "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
		"newDayId": "day-2",
		"newStartTime": "15:00",
		"newDurationMinutes": 60,
		"lockedDependencies": ["dinner reservation"],
		"userConfirmed": true
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Empty(t, dayOrder(t, repo, "day-1"))
	assert.Equal(t, []string{"Vatican", "Colosseum"}, dayOrder(t, repo, "day-2"))

	moved := repo.destinations["aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"]
	ann := schedule.Decode(moved.Notes)
	require.NotNil(t, ann.StartMinute)
	assert.Equal(t, 15*60, *ann.StartMinute)
}

func TestDispatch_RemoveNeedsConfirmation(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", "day-1", 0, "Colosseum", nil)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "RemoveOrReplaceItem",
		"tripId": "trip-1",
		"dayId": "day-1",
		"itemId": "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
		"mode": "remove"
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, "requires user confirmation", results[0].Reason)
	assert.Equal(t, []string{"Colosseum"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_ConfirmedRemoveRenumbers(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", "day-1", 0, "Colosseum", nil)
	seedDestination(repo, "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb", "day-1", 1, "Pantheon", nil)
	seedDestination(repo, "cccccccc-cccc-4ccc-8ccc-cccccccccccc", "day-1", 2, "Vatican", nil)

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "RemoveOrReplaceItem",
		"tripId": "trip-1",
		"dayId": "day-1",
		"itemId": "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb",
		"mode": "remove",
		"userConfirmed": true
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, []string{"Colosseum", "Vatican"}, dayOrder(t, repo, "day-1"))
}

func TestDispatch_ReplaceKeepsSlotAndSchedule(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	seedDestination(repo, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", "day-1", 0, "Colosseum", intPtr(9*60))
	seedDestination(repo, "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb", "day-1", 1, "Pantheon", intPtr(11*60))
	seedDestination(repo, "cccccccc-cccc-4ccc-8ccc-cccccccccccc", "day-1", 2, "Vatican", intPtr(14*60))

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "RemoveOrReplaceItem",
		"tripId": "trip-1",
		"dayId": "day-1",
		"itemId": "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb",
		"mode": "replace",
		"userConfirmed": true,
		"replacement": {"fallbackQuery": "Trevi Fountain"}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	assert.Equal(t, []string{"Colosseum", "Trevi Fountain", "Vatican"}, dayOrder(t, repo, "day-1"))
	assert.NotContains(t, repo.destinations, "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")

	dests, _ := repo.ListDestinations(context.Background(), "day-1")
	// No timing on the replacement: the original's annotation carries over.
	ann := schedule.Decode(dests[1].Notes)
	require.NotNil(t, ann.StartMinute)
	assert.Equal(t, 11*60, *ann.StartMinute)
}

func TestDispatch_SetBaseLocationReplacesByDefault(t *testing.T) {
	d, repo := setupDispatcher(t, 0)
	repo.baseLocations["day-1"] = []models.BaseLocation{{ID: "old", DayID: "day-1", Name: "Old Hotel"}}

	results := d.Dispatch(context.Background(), "user-1", []json.RawMessage{raw(`{
		"type": "SetBaseLocation",
		"dayId": "day-1",
		"location": {"name": "Hotel Roma"}
	}`)}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, StatusApplied, results[0].Status)
	locs, _ := repo.ListBaseLocations(context.Background(), "day-1")
	require.Len(t, locs, 1)
	assert.Equal(t, "Hotel Roma", locs[0].Name)
}
