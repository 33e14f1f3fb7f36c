package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/heuristics"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
	"github.com/LEOK66/Modo-sub004/app/pkg/logger"
)

// PlanSource produces the tasks for one plan day. The production
// implementation asks the model; tests use a static source.
type PlanSource interface {
	GenerateWorkout(ctx context.Context, date string) (taskdto.TaskDTO, error)
	GenerateNutrition(ctx context.Context, date string) (taskdto.TaskDTO, error)
}

type PlanParams struct {
	StartDate        string
	DayCount         int
	IncludeWorkout   bool
	IncludeNutrition bool
}

// PlanDayResult reports one day's outcome; failed days carry the error
// text and never abort the remaining days.
type PlanDayResult struct {
	Date       string   `json:"date"`
	CreatedIDs []string `json:"created_ids"`
	Error      string   `json:"error,omitempty"`
}

type PlanHandler struct {
	bus         *bus.Bus
	store       taskstore.Store
	source      PlanSource
	dedup       *SessionDedup
	defaultDays int
	maxDays     int
}

func NewPlanHandler(b *bus.Bus, store taskstore.Store, source PlanSource, dedup *SessionDedup, defaultDays int, maxDays int) *PlanHandler {
	if defaultDays <= 0 {
		defaultDays = heuristics.DefaultDayCount
	}
	if maxDays <= 0 || maxDays > heuristics.MaxDayCount {
		maxDays = heuristics.MaxDayCount
	}
	return &PlanHandler{
		bus:         b,
		store:       store,
		source:      source,
		dedup:       dedup,
		defaultDays: defaultDays,
		maxDays:     maxDays,
	}
}

func (h *PlanHandler) Command() string { return CommandGeneratePlan }

func (h *PlanHandler) Decode(raw string) (interface{}, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	startDate := gjson.Get(raw, "start_date").String()
	if !taskdto.ValidDate(startDate) {
		return nil, fmt.Errorf("start_date is required as YYYY-MM-DD, got %q", startDate)
	}

	params := PlanParams{
		StartDate:        startDate,
		DayCount:         h.defaultDays,
		IncludeWorkout:   true,
		IncludeNutrition: true,
	}
	if field := gjson.Get(raw, "day_count"); field.Exists() {
		params.DayCount = heuristics.ClampDayCount(int(field.Int()))
	}
	if params.DayCount > h.maxDays {
		params.DayCount = h.maxDays
	}
	if field := gjson.Get(raw, "include_workout"); field.Exists() {
		params.IncludeWorkout = field.Bool()
	}
	if field := gjson.Get(raw, "include_nutrition"); field.Exists() {
		params.IncludeNutrition = field.Bool()
	}
	if !params.IncludeWorkout && !params.IncludeNutrition {
		return nil, fmt.Errorf("at least one of include_workout/include_nutrition must be true")
	}
	return params, nil
}

func (h *PlanHandler) Handle(ctx context.Context, correlationID string, params interface{}) {
	p := params.(PlanParams)

	start, _ := time.Parse(taskdto.DateLayout, p.StartDate)
	days := make([]PlanDayResult, 0, p.DayCount)
	for i := 0; i < p.DayCount; i++ {
		date := start.AddDate(0, 0, i).Format(taskdto.DateLayout)
		days = append(days, h.generateDay(ctx, date, p))
	}

	data, _ := sjson.Set("{}", "days", days)
	data, _ = sjson.Set(data, "requested_days", p.DayCount)
	h.bus.Publish(bus.TopicPlanResponse, success(correlationID, data))
}

func (h *PlanHandler) generateDay(ctx context.Context, date string, p PlanParams) PlanDayResult {
	result := PlanDayResult{Date: date, CreatedIDs: []string{}}

	generate := func(kind string, gen func(context.Context, string) (taskdto.TaskDTO, error)) error {
		dto, err := gen(ctx, date)
		if err != nil {
			return fmt.Errorf("%s generation: %w", kind, err)
		}
		dto.Date = date
		dto.IsAIGenerated = true
		if dto.Source == "" {
			dto.Source = "multi_day_plan"
		}
		key := taskdto.DedupKey(dto)
		if h.dedup.Seen(key) {
			logger.Info("[Plan] duplicate %s task suppressed for %s", kind, date)
			return nil
		}
		if dto.ID == "" {
			dto.ID = uuid.NewString()
		}
		domain, err := taskdto.ToDomain(dto)
		if err != nil {
			return fmt.Errorf("%s translate: %w", kind, err)
		}
		if err := h.store.Insert(ctx, domain); err != nil {
			return fmt.Errorf("%s insert: %w", kind, err)
		}
		h.dedup.Mark(key)
		result.CreatedIDs = append(result.CreatedIDs, domain.ID)
		return nil
	}

	// A failed day is reported in place and the loop keeps going.
	if p.IncludeWorkout {
		if err := generate(taskdto.KindWorkout, h.source.GenerateWorkout); err != nil {
			logger.Error("[Plan] day %s failed: %v", date, err)
			result.Error = err.Error()
			return result
		}
	}
	if p.IncludeNutrition {
		if err := generate(taskdto.KindNutrition, h.source.GenerateNutrition); err != nil {
			logger.Error("[Plan] day %s failed: %v", date, err)
			result.Error = err.Error()
			return result
		}
	}
	return result
}
