package plansync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/coordinator"
	"github.com/LEOK66/Modo-sub004/app/core/dispatch"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
	"github.com/LEOK66/Modo-sub004/app/pkg/logger"
)

// Job backfills today's generated tasks: when the store has no
// AI-generated task for the current date, it executes a one-day
// generate_multi_day_plan through the coordinator, same as a user
// request would.
type Job struct {
	store taskstore.Store
	coord *coordinator.Coordinator
	now   func() time.Time
}

func NewJob(store taskstore.Store, coord *coordinator.Coordinator) *Job {
	return &Job{
		store: store,
		coord: coord,
		now:   time.Now,
	}
}

func (j *Job) Name() string { return "daily-plan-sync" }

func (j *Job) Run(ctx context.Context) error {
	today := j.now().Format(taskdto.DateLayout)

	tasks, err := j.store.List(ctx, today)
	if err != nil {
		return fmt.Errorf("plansync: list %s: %w", today, err)
	}
	for _, task := range tasks {
		if task.AIGenerated {
			return nil
		}
	}

	args, _ := sjson.Set("{}", "start_date", today)
	args, _ = sjson.Set(args, "day_count", 1)

	resp, err := j.coord.Execute(ctx, dispatch.CommandGeneratePlan, args)
	if err != nil {
		if errors.Is(err, bus.ErrTimeout) {
			return fmt.Errorf("plansync: plan request timed out")
		}
		return fmt.Errorf("plansync: execute plan: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("plansync: plan rejected: %s", resp.ErrorMessage)
	}
	logger.Info("[PlanSync] backfilled plan for %s", today)
	return nil
}
