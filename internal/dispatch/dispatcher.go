// Package dispatch selects the optimal feasible slot from a persisted
// schedule and enqueues a deferred HTTP invocation. The selection logic is
// a small explicit state machine over the deadline and the sorted slots.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/carbonaware/faas-scheduler/internal/scheduling"
	"github.com/carbonaware/faas-scheduler/internal/storage"
	"github.com/carbonaware/faas-scheduler/internal/types"
)

// Event is the dispatcher's input. Delay "false" wins over any deadline;
// otherwise a valid ISO-8601 UTC deadline is required.
type Event struct {
	FunctionName  string          `json:"function_name"`
	FunctionParam json.RawMessage `json:"function_param,omitempty"`
	Delay         string          `json:"delay,omitempty"`
	Deadline      string          `json:"deadline,omitempty"`
}

// Response is the dispatcher's success shape.
type Response struct {
	Status          string `json:"status"`
	Function        string `json:"function"`
	Delay           string `json:"delay"`
	TargetRegion    string `json:"target_region"`
	TargetTime      string `json:"target_time"`
	Priority        int    `json:"priority"`
	CarbonIntensity int    `json:"carbon_intensity"`
	FunctionURL     string `json:"function_url,omitempty"`
}

// Service loads schedules and dispatches invocations.
type Service struct {
	store  storage.Store
	queue  TaskQueue
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a dispatcher. queue may be nil, in which case the
// selection is returned without enqueueing.
func NewService(store storage.Store, queue TaskQueue, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Dispatch validates the event, selects a slot, optionally enqueues the
// deferred invocation, and returns the dispatch result.
func (s *Service) Dispatch(ctx context.Context, event Event) (Response, *types.SchedulerError) {
	now := s.now().UTC()

	deadline, delayRequested, vErr := s.validate(event, now)
	if vErr != nil {
		return Response{}, vErr
	}

	var schedule scheduling.Schedule
	if err := s.store.Read(ctx, storage.ScheduleKey(event.FunctionName), &schedule); err != nil {
		if storage.IsNotFound(err) {
			return Response{}, types.NewNotFoundError(fmt.Sprintf("schedule for function %q", event.FunctionName))
		}
		return Response{}, types.NewError(types.ErrorCodeInternal, "failed to load schedule").WithCause(err)
	}

	slot, target, err := findOptimalSlot(schedule.Recommendations, deadline, now)
	if err != nil {
		return Response{}, types.NewNotFoundError("suitable slot").WithDetails(err.Error())
	}

	delay := "false"
	if target.After(now) {
		delay = "true"
	}

	s.logger.Info("slot selected",
		"function", event.FunctionName,
		"region", slot.Region,
		"target_time", target,
		"priority", slot.Priority,
		"delay", delay,
		"delay_requested", delayRequested)

	if s.queue != nil {
		if err := s.enqueue(ctx, slot, target, event.FunctionParam); err != nil {
			return Response{}, types.NewError(types.ErrorCodeInternal, "failed to enqueue task").WithCause(err)
		}
	}

	return Response{
		Status:          "scheduled",
		Function:        event.FunctionName,
		Delay:           delay,
		TargetRegion:    slot.Region,
		TargetTime:      target.Format(time.RFC3339),
		Priority:        slot.Priority,
		CarbonIntensity: slot.CarbonIntensity,
		FunctionURL:     slot.FunctionURL,
	}, nil
}

// validate applies the input rules and resolves the effective deadline.
// delay="false" maps to an hour-aligned "now"; a deadline in the past is
// clamped to now.
func (s *Service) validate(event Event, now time.Time) (time.Time, bool, *types.SchedulerError) {
	if event.FunctionName == "" {
		return time.Time{}, false, types.NewDispatchError("missing 'function_name'")
	}

	switch event.Delay {
	case "", "true", "false":
	default:
		return time.Time{}, false, types.NewDispatchError(fmt.Sprintf("invalid 'delay' value %q (use \"true\" or \"false\")", event.Delay))
	}

	if event.Delay == "false" {
		return now.Truncate(time.Hour), false, nil
	}

	if event.Deadline == "" {
		return time.Time{}, false, types.NewDispatchError("missing 'deadline' (ISO-8601 UTC) for delayed dispatch")
	}

	deadline, err := parseDeadline(event.Deadline)
	if err != nil {
		return time.Time{}, false, types.NewDispatchError(fmt.Sprintf("invalid 'deadline': %v", err))
	}

	if deadline.Before(now) {
		deadline = now
	}
	return deadline, true, nil
}

// parseDeadline accepts RFC 3339 with or without an explicit zone; a naked
// timestamp is taken as UTC.
func parseDeadline(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("use ISO 8601, e.g. 2025-12-31T23:59:59Z")
}

// timedSlot pairs a recommendation with its parsed UTC time.
type timedSlot struct {
	scheduling.Recommendation
	at time.Time
}

// findOptimalSlot applies the selection rules in order on the sorted slots:
//
//	(a) deadline earlier than the earliest slot: earliest slot, executed at
//	    the deadline;
//	(b) otherwise the feasible set is every slot at or before the deadline
//	    that can still run: strictly after now for a future deadline, or
//	    within the current hour for an immediate dispatch (deadline at or
//	    before now);
//	(c) an empty feasible set falls back to the last slot, executed at the
//	    deadline truncated to the hour;
//	(d) otherwise the lowest-priority-number feasible slot wins, ties broken
//	    by earlier datetime.
func findOptimalSlot(recs []scheduling.Recommendation, deadline, now time.Time) (scheduling.Recommendation, time.Time, error) {
	if len(recs) == 0 {
		return scheduling.Recommendation{}, time.Time{}, fmt.Errorf("schedule has no recommendations")
	}

	slots := make([]timedSlot, 0, len(recs))
	for _, rec := range recs {
		at, err := rec.SlotTime()
		if err != nil {
			return scheduling.Recommendation{}, time.Time{}, err
		}
		slots = append(slots, timedSlot{Recommendation: rec, at: at})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].at.Before(slots[j].at) })

	if deadline.Before(slots[0].at) {
		return slots[0].Recommendation, deadline, nil
	}

	currentHourStart := now.Truncate(time.Hour)
	futureDeadline := deadline.After(now)

	var feasible []timedSlot
	for _, slot := range slots {
		if slot.at.After(deadline) {
			continue
		}
		if futureDeadline {
			if slot.at.After(now) {
				feasible = append(feasible, slot)
			}
		} else if !slot.at.Before(currentHourStart) {
			feasible = append(feasible, slot)
		}
	}

	if len(feasible) == 0 {
		last := slots[len(slots)-1]
		return last.Recommendation, deadline.Truncate(time.Hour), nil
	}

	best := feasible[0]
	for _, slot := range feasible[1:] {
		if slot.Priority < best.Priority ||
			(slot.Priority == best.Priority && slot.at.Before(best.at)) {
			best = slot
		}
	}
	return best.Recommendation, best.at, nil
}

func (s *Service) enqueue(ctx context.Context, slot scheduling.Recommendation, target time.Time, body json.RawMessage) error {
	if slot.FunctionURL == "" {
		return fmt.Errorf("selected slot has no function_url; was the function deployed?")
	}

	_, err := s.queue.CreateTask(ctx, Task{
		HTTPRequest: HTTPRequest{
			Method: http.MethodPost,
			URL:    slot.FunctionURL,
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
			Body: body,
		},
		ScheduleTime: target,
	})
	return err
}
