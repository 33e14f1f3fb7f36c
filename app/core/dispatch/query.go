package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/heuristics"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
)

type QueryParams struct {
	Date     string
	DayCount int
	Category string
	IsDone   *bool
}

type QueryHandler struct {
	bus   *bus.Bus
	store taskstore.Store
}

func NewQueryHandler(b *bus.Bus, store taskstore.Store) *QueryHandler {
	return &QueryHandler{bus: b, store: store}
}

func (h *QueryHandler) Command() string { return CommandReadTasks }

func (h *QueryHandler) Decode(raw string) (interface{}, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	date := gjson.Get(raw, "date").String()
	if !taskdto.ValidDate(date) {
		return nil, fmt.Errorf("date is required as YYYY-MM-DD, got %q", date)
	}

	params := QueryParams{Date: date, DayCount: 1}
	if rangeField := gjson.Get(raw, "date_range"); rangeField.Exists() {
		params.DayCount = heuristics.ClampDayCount(int(rangeField.Int()))
	}
	params.Category = strings.TrimSpace(gjson.Get(raw, "category").String())
	if doneField := gjson.Get(raw, "is_done"); doneField.Exists() {
		done := doneField.Bool()
		params.IsDone = &done
	}
	return params, nil
}

func (h *QueryHandler) Handle(ctx context.Context, correlationID string, params interface{}) {
	p := params.(QueryParams)

	start, _ := time.Parse(taskdto.DateLayout, p.Date)
	results := make([]taskdto.TaskDTO, 0, 16)
	for i := 0; i < p.DayCount; i++ {
		date := start.AddDate(0, 0, i).Format(taskdto.DateLayout)
		tasks, err := h.store.List(ctx, date)
		if err != nil {
			h.bus.Publish(bus.TopicTaskQueryResponse, failure(correlationID, CodeStoreError, err.Error()))
			return
		}
		for _, t := range tasks {
			dto, err := taskdto.ToDTO(t)
			if err != nil {
				h.bus.Publish(bus.TopicTaskQueryResponse, failure(correlationID, CodeStoreError, err.Error()))
				return
			}
			if !matchesFilters(dto, p) {
				continue
			}
			results = append(results, dto)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Date != results[j].Date {
			return results[i].Date < results[j].Date
		}
		return results[i].Time < results[j].Time
	})

	completed := 0
	for _, dto := range results {
		if dto.IsDone {
			completed++
		}
	}

	// An empty list is a successful result, not an error.
	data, _ := sjson.Set("{}", "tasks", results)
	data, _ = sjson.Set(data, "total", len(results))
	data, _ = sjson.Set(data, "completed_tasks", completed)
	h.bus.Publish(bus.TopicTaskQueryResponse, success(correlationID, data))
}

func matchesFilters(dto taskdto.TaskDTO, p QueryParams) bool {
	if p.Category != "" && !strings.EqualFold(dto.Category, p.Category) {
		return false
	}
	if p.IsDone != nil && dto.IsDone != *p.IsDone {
		return false
	}
	return true
}
