package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Thepalm86/trip-sub001/internal/access"
	"github.com/Thepalm86/trip-sub001/internal/action"
	"github.com/Thepalm86/trip-sub001/internal/database"
	"github.com/Thepalm86/trip-sub001/internal/models"
	"github.com/Thepalm86/trip-sub001/internal/schedule"
)

// Status classifies a single action's outcome.
type Status string

const (
	// StatusApplied means the mutation was executed.
	StatusApplied Status = "applied"
	// StatusSkipped means a recoverable precondition failed; the reason
	// names it. Skips are first-class outcomes, not errors.
	StatusSkipped Status = "skipped"
	// StatusFailed means an authorization or runtime error occurred.
	StatusFailed Status = "failed"
)

// Result is the per-action return contract of one dispatch pass. It is never
// persisted.
type Result struct {
	Action action.Type `json:"action"`
	Status Status      `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// Dispatcher takes batches of untrusted action payloads and applies them
// against persistent storage. Actions in a batch run sequentially: later
// actions frequently depend on the index renumbering done by earlier ones.
type Dispatcher struct {
	repo          database.Repository
	resolver      *access.Resolver
	idem          IdempotencyStore
	logger        *zap.Logger
	minConfidence float64
}

// NewDispatcher creates a new dispatcher. minConfidence below or at zero
// disables the confidence gate.
func NewDispatcher(repo database.Repository, resolver *access.Resolver, idem IdempotencyStore, logger *zap.Logger, minConfidence float64) *Dispatcher {
	return &Dispatcher{
		repo:          repo,
		resolver:      resolver,
		idem:          idem,
		logger:        logger,
		minConfidence: minConfidence,
	}
}

// Dispatch validates, deduplicates and executes a batch on behalf of userID,
// returning one result per surviving action in input order. Duplicates
// dropped within the batch are absent from the output. A batch in which
// nothing validates is rejected wholesale with an empty result set: better
// to apply nothing than something unvalidated.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, rawActions []json.RawMessage, callMeta *action.Meta) []Result {
	type parsedAction struct {
		env action.Envelope
		err error
	}

	parsed := make([]parsedAction, 0, len(rawActions))
	valid := 0
	for _, raw := range rawActions {
		env, err := action.Parse(raw)
		if err == nil {
			valid++
		}
		parsed = append(parsed, parsedAction{env: env, err: err})
	}

	if len(rawActions) > 0 && valid == 0 {
		d.logger.Warn("Rejecting action batch: nothing validated",
			zap.Int("count", len(rawActions)),
		)
		return []Result{}
	}

	seen := map[string]bool{}
	results := make([]Result, 0, len(parsed))
	for _, p := range parsed {
		if p.err != nil {
			results = append(results, Result{
				Status: StatusFailed,
				Reason: p.err.Error(),
			})
			continue
		}

		key := action.DedupKey(p.env)
		if seen[key] {
			d.logger.Debug("Dropping in-batch duplicate", zap.String("key", key))
			continue
		}
		seen[key] = true

		results = append(results, d.process(ctx, userID, p.env, callMeta))
	}

	return results
}

// process applies the gates and executes a single action. Failures here
// never abort the rest of the batch.
func (d *Dispatcher) process(ctx context.Context, userID string, env action.Envelope, callMeta *action.Meta) Result {
	t := env.Intent.ActionType()

	// Cross-batch idempotency applies only to explicit request ids; the
	// structural fallback key is too coarse to persist.
	if env.Meta != nil && env.Meta.RequestID != "" {
		if !d.idem.FirstUse(ctx, env.Meta.RequestID) {
			return Result{Action: t, Status: StatusSkipped,
				Reason: fmt.Sprintf("duplicate request %s already processed", env.Meta.RequestID)}
		}
	}

	if conf := effectiveConfidence(env.Meta, callMeta); conf != nil && d.minConfidence > 0 && *conf < d.minConfidence {
		return Result{Action: t, Status: StatusSkipped,
			Reason: fmt.Sprintf("confidence %.2f below threshold %.2f", *conf, d.minConfidence)}
	}

	res := d.execute(ctx, userID, env)

	d.logger.Info("Processed action",
		zap.String("action", action.Describe(env.Intent)),
		zap.String("status", string(res.Status)),
		zap.String("reason", res.Reason),
	)
	return res
}

func effectiveConfidence(actionMeta, callMeta *action.Meta) *float64 {
	if actionMeta != nil && actionMeta.Confidence != nil {
		return actionMeta.Confidence
	}
	if callMeta != nil {
		return callMeta.Confidence
	}
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, userID string, env action.Envelope) Result {
	switch a := env.Intent.(type) {
	case action.AddDestination:
		return d.executeAdd(ctx, userID, a, nil)
	case action.UpdateDestination:
		return d.executeUpdate(ctx, userID, a)
	case action.SetBaseLocation:
		return d.executeSetBase(ctx, userID, a)
	case action.MoveDestination:
		return d.executeMove(ctx, userID, a)
	case action.ToggleMapOverlay:
		return d.executeToggle(a)
	case action.AddPlaceToItinerary:
		conf := a.Confidence
		return d.executeAdd(ctx, userID, a.ToAddDestination(), &conf)
	case action.RescheduleItineraryItem:
		return d.executeReschedule(ctx, userID, a)
	case action.RemoveOrReplaceItem:
		return d.executeRemoveOrReplace(ctx, userID, a)
	}
	return Result{Action: env.Intent.ActionType(), Status: StatusFailed, Reason: "unhandled action type"}
}

// classifyAccessErr turns resolver failures into results. An unknown day is
// a data-quality gap in the proposal (skip); a forbidden or unexpected error
// is a failure.
func classifyAccessErr(t action.Type, err error) Result {
	var nf *models.NotFoundError
	if errors.As(err, &nf) && nf.Resource == "day" {
		return Result{Action: t, Status: StatusSkipped, Reason: fmt.Sprintf("unknown day id %s", nf.ID)}
	}
	return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
}

// timelineSlots projects a day's destinations into codec slots.
func timelineSlots(destinations []models.Destination) []schedule.Slot {
	return lo.Map(destinations, func(dest models.Destination, _ int) schedule.Slot {
		ann := schedule.Decode(dest.Notes)
		return schedule.Slot{ID: dest.ID, StartMinute: ann.StartMinute}
	})
}

func (d *Dispatcher) insertionIndex(ctx context.Context, dayID string, desired *int, excludeID string) (int, error) {
	destinations, err := d.repo.ListDestinations(ctx, dayID)
	if err != nil {
		return 0, err
	}
	return schedule.InsertionIndex(timelineSlots(destinations), desired, excludeID), nil
}

func (d *Dispatcher) executeAdd(ctx context.Context, userID string, a action.AddDestination, confidence *float64) Result {
	t := a.ActionType()

	if _, err := d.resolver.ResolveDayAccess(ctx, userID, a.DayID); err != nil {
		return classifyAccessErr(t, err)
	}

	if a.Destination.Coordinates == nil {
		return Result{Action: t, Status: StatusSkipped, Reason: "missing coordinates"}
	}

	ann := schedule.Annotation{
		DurationMinutes: a.Destination.EstimatedDurationMinutes,
		Confidence:      confidence,
	}
	if a.Destination.StartTimeIso != "" {
		if minute, err := schedule.ParseClock(a.Destination.StartTimeIso); err == nil {
			ann.StartMinute = &minute
		}
	}

	index := 0
	if a.InsertIndex != nil {
		index = *a.InsertIndex
	} else {
		var err error
		index, err = d.insertionIndex(ctx, a.DayID, ann.StartMinute, "")
		if err != nil {
			return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
		}
	}

	now := time.Now().UTC()
	dest := &models.Destination{
		ID:              uuid.New().String(),
		DayID:           a.DayID,
		OrderIndex:      index,
		Name:            a.Destination.Name,
		Category:        a.Destination.Category,
		City:            a.Destination.City,
		Coordinates:     a.Destination.Coordinates,
		DurationMinutes: a.Destination.EstimatedDurationMinutes,
		Notes:           schedule.Encode(a.Destination.Notes, ann),
		Links:           a.Destination.Links,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := d.repo.InsertDestination(ctx, dest); err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	return Result{Action: t, Status: StatusApplied}
}

func (d *Dispatcher) executeUpdate(ctx context.Context, userID string, a action.UpdateDestination) Result {
	t := a.ActionType()

	acc, err := d.resolver.ResolveDestinationAccess(ctx, userID, a.DestinationID)
	if err != nil {
		return classifyAccessErr(t, err)
	}
	if acc.Day.ID != a.DayID {
		return Result{Action: t, Status: StatusFailed,
			Reason: fmt.Sprintf("destination %s does not belong to day %s", a.DestinationID, a.DayID)}
	}

	dest := acc.Destination
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
		if minute, perr := schedule.ParseClock(*c.StartTimeIso); perr == nil {
			ann.StartMinute = &minute
		}
	}
	dest.Notes = schedule.Encode(userNotes, ann)

	if err := d.repo.UpdateDestination(ctx, dest); err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	return Result{Action: t, Status: StatusApplied}
}

func (d *Dispatcher) executeSetBase(ctx context.Context, userID string, a action.SetBaseLocation) Result {
	t := a.ActionType()

	if _, err := d.resolver.ResolveDayAccess(ctx, userID, a.DayID); err != nil {
		return classifyAccessErr(t, err)
	}

	loc := &models.BaseLocation{
		ID:          uuid.New().String(),
		DayID:       a.DayID,
		Name:        a.Location.Name,
		Coordinates: a.Location.Coordinates,
		Context:     a.Location.Context,
		Notes:       a.Location.Notes,
		Links:       a.Location.Links,
	}

	if err := d.repo.SetBaseLocation(ctx, loc, a.Replace(), a.LocationIndex); err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	return Result{Action: t, Status: StatusApplied}
}

func (d *Dispatcher) executeMove(ctx context.Context, userID string, a action.MoveDestination) Result {
	t := a.ActionType()

	if _, _, err := d.resolver.ResolveMove(ctx, userID, a.FromDayID, a.ToDayID); err != nil {
		return classifyAccessErr(t, err)
	}

	acc, err := d.resolver.ResolveDestinationAccess(ctx, userID, a.DestinationID)
	if err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	if acc.Day.ID != a.FromDayID {
		return Result{Action: t, Status: StatusFailed,
			Reason: fmt.Sprintf("destination %s is not on day %s", a.DestinationID, a.FromDayID)}
	}

	index := 0
	if a.InsertIndex != nil {
		index = *a.InsertIndex
	} else {
		ann := schedule.Decode(acc.Destination.Notes)
		index, err = d.insertionIndex(ctx, a.ToDayID, ann.StartMinute, a.DestinationID)
		if err != nil {
			return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
		}
	}

	if err := d.repo.MoveDestination(ctx, a.DestinationID, a.ToDayID, index); err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	return Result{Action: t, Status: StatusApplied}
}

// executeToggle handles the one action with no ownership chain. It is pure
// view state, so dispatch only acknowledges it with a descriptive summary.
func (d *Dispatcher) executeToggle(a action.ToggleMapOverlay) Result {
	state := "toggled"
	if a.Enabled != nil {
		if *a.Enabled {
			state = "enabled"
		} else {
			state = "disabled"
		}
	}
	return Result{
		Action: a.ActionType(),
		Status: StatusApplied,
		Reason: fmt.Sprintf("%s %s overlay", state, strings.ReplaceAll(string(a.Overlay), "_", " ")),
	}
}

func (d *Dispatcher) executeReschedule(ctx context.Context, userID string, a action.RescheduleItineraryItem) Result {
	t := a.ActionType()

	if len(a.LockedDependencies) > 0 && !a.UserConfirmed {
		return Result{Action: t, Status: StatusSkipped,
			Reason: fmt.Sprintf("requires user confirmation: locked dependencies (%s)",
				strings.Join(a.LockedDependencies, ", "))}
	}

	if _, _, err := d.resolver.ResolveMove(ctx, userID, a.DayID, a.NewDayID); err != nil {
		return classifyAccessErr(t, err)
	}

	acc, err := d.resolver.ResolveDestinationAccess(ctx, userID, a.ItemID)
	if err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	if acc.Day.ID != a.DayID {
		return Result{Action: t, Status: StatusFailed,
			Reason: fmt.Sprintf("item %s is not on day %s", a.ItemID, a.DayID)}
	}

	dest := acc.Destination
	ann := schedule.Decode(dest.Notes)
	minute, err := schedule.ParseClock(a.NewStartTime)
	if err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	duration := a.NewDurationMinutes
	ann.StartMinute = &minute
	ann.DurationMinutes = &duration

	dest.DurationMinutes = &duration
	dest.Notes = schedule.Encode(schedule.Strip(dest.Notes), ann)
	if err := d.repo.UpdateDestination(ctx, dest); err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}

	index, err := d.insertionIndex(ctx, a.NewDayID, &minute, a.ItemID)
	if err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	if err := d.repo.MoveDestination(ctx, a.ItemID, a.NewDayID, index); err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	return Result{Action: t, Status: StatusApplied}
}

func (d *Dispatcher) executeRemoveOrReplace(ctx context.Context, userID string, a action.RemoveOrReplaceItem) Result {
	t := a.ActionType()

	// Destructive actions never run speculatively, whatever the mode.
	if !a.UserConfirmed {
		return Result{Action: t, Status: StatusSkipped, Reason: "requires user confirmation"}
	}

	acc, err := d.resolver.ResolveDestinationAccess(ctx, userID, a.ItemID)
	if err != nil {
		return classifyAccessErr(t, err)
	}

	if a.Mode == "remove" {
		if err := d.repo.DeleteDestination(ctx, a.ItemID); err != nil {
			return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
		}
		return Result{Action: t, Status: StatusApplied}
	}

	spec := a.Replacement.ToDestinationSpec()
	ann := schedule.Annotation{DurationMinutes: spec.EstimatedDurationMinutes}
	if spec.StartTimeIso != "" {
		if minute, perr := schedule.ParseClock(spec.StartTimeIso); perr == nil {
			ann.StartMinute = &minute
		}
	}
	if ann.StartMinute == nil {
		// The replacement proposed no timing: carry the original's schedule
		// annotation over so the day keeps its shape.
		old := schedule.Decode(acc.Destination.Notes)
		ann.StartMinute = old.StartMinute
		if ann.DurationMinutes == nil {
			ann.DurationMinutes = old.DurationMinutes
		}
		ann.Confidence = old.Confidence
	}

	now := time.Now().UTC()
	repl := &models.Destination{
		ID:              uuid.New().String(),
		Name:            spec.Name,
		Coordinates:     spec.Coordinates,
		DurationMinutes: ann.DurationMinutes,
		Notes:           schedule.Encode(spec.Notes, ann),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := d.repo.ReplaceDestination(ctx, a.ItemID, repl); err != nil {
		return Result{Action: t, Status: StatusFailed, Reason: err.Error()}
	}
	return Result{Action: t, Status: StatusApplied}
}
