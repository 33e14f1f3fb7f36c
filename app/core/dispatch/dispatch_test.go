package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/core/taskstore"
)

func captureTopic(b *bus.Bus, topic bus.Topic) <-chan bus.Envelope {
	ch := make(chan bus.Envelope, 8)
	b.Subscribe(topic, func(env bus.Envelope) {
		ch <- env
	})
	return ch
}

func awaitEnvelope(t *testing.T, ch <-chan bus.Envelope) bus.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("no response envelope arrived")
		return bus.Envelope{}
	}
}

func mustInsert(t *testing.T, store taskstore.Store, dto taskdto.TaskDTO) {
	t.Helper()
	domain, err := taskdto.ToDomain(dto)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if err := store.Insert(context.Background(), domain); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
}

func customDTO(id string, title string, date string, clock string) taskdto.TaskDTO {
	return taskdto.TaskDTO{ID: id, Kind: taskdto.KindCustom, Title: title, Date: date, Time: clock}
}

func TestDispatchUnknownCommandStaysSilent(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewCreateHandler(b, store, NewSessionDedup()))
	responses := captureTopic(b, bus.TopicTaskCreateResponse)

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       "reboot_universe",
		Args:          "{}",
	})

	select {
	case env := <-responses:
		t.Fatalf("unexpected response for unknown command: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchDecodeFailurePublishesError(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewCreateHandler(b, store, NewSessionDedup()))
	responses := captureTopic(b, bus.TopicTaskCreateResponse)

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandCreateTask,
		Args:          `{"tasks": "not-an-array"}`,
	})

	env := awaitEnvelope(t, responses)
	if env.Success {
		t.Fatal("expected failure envelope")
	}
	if env.ErrorCode != CodeDecodeError {
		t.Fatalf("expected DECODE_ERROR, got %s", env.ErrorCode)
	}
	if env.CorrelationID != "c1" {
		t.Fatalf("correlation id not propagated: %s", env.CorrelationID)
	}
	if store.Len() != 0 {
		t.Fatal("decode failure must not touch the store")
	}
}

func TestCreateAssignsIDsAndSuppressesDuplicates(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewCreateHandler(b, store, NewSessionDedup()))
	responses := captureTopic(b, bus.TopicTaskCreateResponse)

	args := `{"tasks": [{"type": "custom", "title": "Buy groceries", "date": "2024-01-15", "time": "17:00"}], "source": "chat"}`
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c1", Command: CommandCreateTask, Args: args})

	first := awaitEnvelope(t, responses)
	if !first.Success {
		t.Fatalf("create failed: %s", first.ErrorMessage)
	}
	if n := gjson.Get(first.Data, "created_ids.#").Int(); n != 1 {
		t.Fatalf("expected 1 created id, got %d", n)
	}
	if id := gjson.Get(first.Data, "created_ids.0").String(); id == "" {
		t.Fatal("expected a generated task id")
	}

	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c2", Command: CommandCreateTask, Args: args})
	second := awaitEnvelope(t, responses)
	if !second.Success {
		t.Fatalf("repeat create failed: %s", second.ErrorMessage)
	}
	if n := gjson.Get(second.Data, "created_ids.#").Int(); n != 0 {
		t.Fatalf("expected duplicate to be suppressed, created %d", n)
	}
	if skipped := gjson.Get(second.Data, "skipped").Int(); skipped != 1 {
		t.Fatalf("expected skipped=1, got %d", skipped)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 stored task, got %d", store.Len())
	}
}

// flakyStore fails the nth Insert call and delegates everything else.
type flakyStore struct {
	*taskstore.MemoryStore
	failOn  int
	inserts int
}

func (s *flakyStore) Insert(ctx context.Context, task taskstore.Task) error {
	s.inserts++
	if s.inserts == s.failOn {
		return fmt.Errorf("disk full")
	}
	return s.MemoryStore.Insert(ctx, task)
}

func TestCreateRetrySucceedsAfterStoreFailure(t *testing.T) {
	b := bus.New()
	store := &flakyStore{MemoryStore: taskstore.NewMemoryStore(), failOn: 1}
	d := NewDispatcher(b)
	d.Register(NewCreateHandler(b, store, NewSessionDedup()))
	responses := captureTopic(b, bus.TopicTaskCreateResponse)

	args := `{"tasks": [{"type": "custom", "title": "Pay rent", "date": "2024-01-15", "time": "09:00"}]}`
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c1", Command: CommandCreateTask, Args: args})

	failed := awaitEnvelope(t, responses)
	if failed.Success || failed.ErrorCode != CodeStoreError {
		t.Fatalf("expected STORE_ERROR, got %+v", failed)
	}
	if store.Len() != 0 {
		t.Fatalf("failed insert must not store, got %d tasks", store.Len())
	}

	// The identical retry must create the task, not hit the dedup guard.
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c2", Command: CommandCreateTask, Args: args})
	retried := awaitEnvelope(t, responses)
	if !retried.Success {
		t.Fatalf("retry failed: %s", retried.ErrorMessage)
	}
	if n := gjson.Get(retried.Data, "created_ids.#").Int(); n != 1 {
		t.Fatalf("expected retry to create the task, got %d created", n)
	}
	if skipped := gjson.Get(retried.Data, "skipped").Int(); skipped != 0 {
		t.Fatalf("retry must not be suppressed, skipped=%d", skipped)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 stored task, got %d", store.Len())
	}
}

func TestCreateFailureReportsPartialBatch(t *testing.T) {
	b := bus.New()
	store := &flakyStore{MemoryStore: taskstore.NewMemoryStore(), failOn: 2}
	d := NewDispatcher(b)
	d.Register(NewCreateHandler(b, store, NewSessionDedup()))
	responses := captureTopic(b, bus.TopicTaskCreateResponse)

	args := `{"tasks": [
		{"type": "custom", "title": "First", "date": "2024-01-15", "time": "08:00"},
		{"type": "custom", "title": "Second", "date": "2024-01-15", "time": "09:00"}]}`
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c1", Command: CommandCreateTask, Args: args})

	failed := awaitEnvelope(t, responses)
	if failed.Success || failed.ErrorCode != CodeStoreError {
		t.Fatalf("expected STORE_ERROR, got %+v", failed)
	}
	if n := gjson.Get(failed.Data, "created_ids.#").Int(); n != 1 {
		t.Fatalf("failure payload must name the landed task, got %d ids", n)
	}
	if store.Len() != 1 {
		t.Fatalf("expected the first task stored, got %d", store.Len())
	}

	// Retrying the batch creates only the missing task.
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c2", Command: CommandCreateTask, Args: args})
	retried := awaitEnvelope(t, responses)
	if !retried.Success {
		t.Fatalf("retry failed: %s", retried.ErrorMessage)
	}
	if n := gjson.Get(retried.Data, "created_ids.#").Int(); n != 1 {
		t.Fatalf("expected only the failed task recreated, got %d", n)
	}
	if skipped := gjson.Get(retried.Data, "skipped").Int(); skipped != 1 {
		t.Fatalf("expected the landed task suppressed, skipped=%d", skipped)
	}
	if store.Len() != 2 {
		t.Fatalf("expected both tasks stored, got %d", store.Len())
	}
}

func TestCreateBatchValidatesBeforeFirstInsert(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewCreateHandler(b, store, NewSessionDedup()))
	responses := captureTopic(b, bus.TopicTaskCreateResponse)

	args := `{"tasks": [
		{"type": "custom", "title": "Fine", "date": "2024-01-15", "time": "08:00"},
		{"type": "nutrition", "title": "Broken", "date": "2024-01-15",
			"exercises": [{"name": "Squat"}]}]}`
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c1", Command: CommandCreateTask, Args: args})

	env := awaitEnvelope(t, responses)
	if env.Success || env.ErrorCode != CodeDecodeError {
		t.Fatalf("expected DECODE_ERROR, got %+v", env)
	}
	if store.Len() != 0 {
		t.Fatalf("a bad batch item must keep the store untouched, got %d", store.Len())
	}
}

func TestCreateRejectsMixedEntries(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewCreateHandler(b, store, NewSessionDedup()))
	responses := captureTopic(b, bus.TopicTaskCreateResponse)

	args := `{"tasks": [{"type": "nutrition", "title": "Meals", "date": "2024-01-15", "time": "08:00",
		"exercises": [{"name": "Squat", "sets": 3, "reps": 8}]}]}`
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c1", Command: CommandCreateTask, Args: args})

	env := awaitEnvelope(t, responses)
	if env.Success {
		t.Fatal("expected mixed entries to be rejected")
	}
	if env.ErrorCode != CodeDecodeError {
		t.Fatalf("expected DECODE_ERROR, got %s", env.ErrorCode)
	}
}

func TestQuerySortsFiltersAndCounts(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewQueryHandler(b, store))
	responses := captureTopic(b, bus.TopicTaskQueryResponse)

	mustInsert(t, store, taskdto.TaskDTO{ID: "t1", Kind: taskdto.KindCustom, Title: "Evening walk",
		Date: "2024-01-15", Time: "19:00", Category: "Wellness"})
	mustInsert(t, store, taskdto.TaskDTO{ID: "t2", Kind: taskdto.KindCustom, Title: "Morning pages",
		Date: "2024-01-15", Time: "07:30", Category: "wellness", IsDone: true})
	mustInsert(t, store, customDTO("t3", "Dentist", "2024-01-16", "10:00"))

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandReadTasks,
		Args:          `{"date": "2024-01-15", "date_range": 2}`,
	})
	env := awaitEnvelope(t, responses)
	if !env.Success {
		t.Fatalf("query failed: %s", env.ErrorMessage)
	}
	if total := gjson.Get(env.Data, "total").Int(); total != 3 {
		t.Fatalf("expected 3 tasks, got %d", total)
	}
	if completed := gjson.Get(env.Data, "completed_tasks").Int(); completed != 1 {
		t.Fatalf("expected 1 completed, got %d", completed)
	}
	order := []string{}
	gjson.Get(env.Data, "tasks").ForEach(func(_, task gjson.Result) bool {
		order = append(order, task.Get("id").String())
		return true
	})
	want := []string{"t2", "t1", "t3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected sort order: %v", order)
		}
	}

	// Category matching ignores case.
	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c2",
		Command:       CommandReadTasks,
		Args:          `{"date": "2024-01-15", "category": "WELLNESS", "is_done": false}`,
	})
	filtered := awaitEnvelope(t, responses)
	if total := gjson.Get(filtered.Data, "total").Int(); total != 1 {
		t.Fatalf("expected 1 filtered task, got %d", total)
	}
	if id := gjson.Get(filtered.Data, "tasks.0.id").String(); id != "t1" {
		t.Fatalf("expected t1, got %s", id)
	}
}

func TestQueryClampsDateRange(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewQueryHandler(b, store))
	responses := captureTopic(b, bus.TopicTaskQueryResponse)

	mustInsert(t, store, customDTO("in-window", "Day seven", "2024-01-21", "09:00"))
	mustInsert(t, store, customDTO("past-window", "Day eight", "2024-01-22", "09:00"))

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandReadTasks,
		Args:          `{"date": "2024-01-15", "date_range": 30}`,
	})
	env := awaitEnvelope(t, responses)
	if total := gjson.Get(env.Data, "total").Int(); total != 1 {
		t.Fatalf("expected range clamp to 7 days, got %d tasks", total)
	}
	if id := gjson.Get(env.Data, "tasks.0.id").String(); id != "in-window" {
		t.Fatalf("unexpected task in range: %s", id)
	}
}

func TestUpdateAppliesOnlyPresentFields(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewUpdateHandler(b, store))
	responses := captureTopic(b, bus.TopicTaskUpdateResponse)

	mustInsert(t, store, taskdto.TaskDTO{ID: "t1", Kind: taskdto.KindCustom, Title: "Read a chapter",
		Date: "2024-01-15", Time: "21:00", Category: "leisure"})

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandUpdateTask,
		Args:          `{"task_id": "t1", "date": "2024-01-15", "updates": {"is_done": true}}`,
	})
	env := awaitEnvelope(t, responses)
	if !env.Success {
		t.Fatalf("update failed: %s", env.ErrorMessage)
	}
	task := gjson.Get(env.Data, "task")
	if !task.Get("is_done").Bool() {
		t.Fatal("expected is_done=true")
	}
	if task.Get("title").String() != "Read a chapter" {
		t.Fatalf("title must be untouched, got %q", task.Get("title").String())
	}
	if task.Get("time").String() != "21:00" {
		t.Fatalf("time must be untouched, got %q", task.Get("time").String())
	}
}

func TestUpdateTimeNeverMovesDate(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewUpdateHandler(b, store))
	responses := captureTopic(b, bus.TopicTaskUpdateResponse)

	mustInsert(t, store, customDTO("t1", "Stretch", "2024-01-15", "06:30"))

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandUpdateTask,
		Args:          `{"task_id": "t1", "date": "2024-01-15", "updates": {"time": "18:45"}}`,
	})
	env := awaitEnvelope(t, responses)
	if !env.Success {
		t.Fatalf("update failed: %s", env.ErrorMessage)
	}
	task := gjson.Get(env.Data, "task")
	if task.Get("time").String() != "18:45" {
		t.Fatalf("expected new time, got %q", task.Get("time").String())
	}
	if task.Get("date").String() != "2024-01-15" {
		t.Fatalf("time edit moved the date: %q", task.Get("date").String())
	}
	if task.Get("display_time").String() != "6:45 PM" {
		t.Fatalf("display time not refreshed: %q", task.Get("display_time").String())
	}
}

func TestUpdateValidation(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewUpdateHandler(b, store))
	responses := captureTopic(b, bus.TopicTaskUpdateResponse)

	mustInsert(t, store, customDTO("t1", "Stretch", "2024-01-15", "06:30"))

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandUpdateTask,
		Args:          `{"task_id": "t1", "date": "2024-01-15", "updates": {"title": "  "}}`,
	})
	blank := awaitEnvelope(t, responses)
	if blank.Success || blank.ErrorCode != CodeDecodeError {
		t.Fatalf("expected DECODE_ERROR for blank title, got %+v", blank)
	}

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c2",
		Command:       CommandUpdateTask,
		Args:          `{"task_id": "ghost", "date": "2024-01-15", "updates": {"is_done": true}}`,
	})
	missing := awaitEnvelope(t, responses)
	if missing.Success || missing.ErrorCode != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", missing)
	}

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c3",
		Command:       CommandUpdateTask,
		Args:          `{"task_id": "t1", "date": "2024-01-15", "updates": {"meals": [{"name": "Toast"}]}}`,
	})
	wrongKind := awaitEnvelope(t, responses)
	if wrongKind.Success || wrongKind.ErrorCode != CodeDecodeError {
		t.Fatalf("expected DECODE_ERROR for meals on custom task, got %+v", wrongKind)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewDeleteHandler(b, store))
	responses := captureTopic(b, bus.TopicTaskDeleteResponse)

	mustInsert(t, store, customDTO("t1", "Old reminder", "2024-01-15", "12:00"))

	// Without confirmed=true the gate fires before any lookup, even
	// for ids that do not exist.
	for i, args := range []string{
		`{"task_id": "t1", "date": "2024-01-15"}`,
		`{"task_id": "ghost", "date": "2024-01-15", "confirmed": false}`,
	} {
		d.Dispatch(context.Background(), bus.Envelope{
			CorrelationID: fmt.Sprintf("c%d", i),
			Command:       CommandDeleteTask,
			Args:          args,
		})
		env := awaitEnvelope(t, responses)
		if env.Success || env.ErrorCode != CodeConfirmRequired {
			t.Fatalf("expected CONFIRM_REQUIRED, got %+v", env)
		}
	}
	if store.Len() != 1 {
		t.Fatal("unconfirmed delete must not touch the store")
	}

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c9",
		Command:       CommandDeleteTask,
		Args:          `{"task_id": "t1", "date": "2024-01-15", "confirmed": true}`,
	})
	confirmed := awaitEnvelope(t, responses)
	if !confirmed.Success {
		t.Fatalf("confirmed delete failed: %s", confirmed.ErrorMessage)
	}
	if id := gjson.Get(confirmed.Data, "deleted_id").String(); id != "t1" {
		t.Fatalf("unexpected deleted id: %s", id)
	}
	if store.Len() != 0 {
		t.Fatal("expected task removed")
	}
}

func TestDeleteMissingTaskNotFound(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	d.Register(NewDeleteHandler(b, store))
	responses := captureTopic(b, bus.TopicTaskDeleteResponse)

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandDeleteTask,
		Args:          `{"task_id": "ghost", "date": "2024-01-15", "confirmed": true}`,
	})
	env := awaitEnvelope(t, responses)
	if env.Success || env.ErrorCode != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", env)
	}
}

type scriptedSource struct {
	failDates map[string]bool
}

func (s scriptedSource) GenerateWorkout(ctx context.Context, date string) (taskdto.TaskDTO, error) {
	if s.failDates[date] {
		return taskdto.TaskDTO{}, fmt.Errorf("model unavailable")
	}
	return taskdto.TaskDTO{Kind: taskdto.KindWorkout, Title: "Workout " + date, Date: date, Time: "07:00",
		Exercises: []taskdto.Exercise{{Name: "Run", DurationMin: 30}}}, nil
}

func (s scriptedSource) GenerateNutrition(ctx context.Context, date string) (taskdto.TaskDTO, error) {
	if s.failDates[date] {
		return taskdto.TaskDTO{}, fmt.Errorf("model unavailable")
	}
	return taskdto.TaskDTO{Kind: taskdto.KindNutrition, Title: "Meals " + date, Date: date, Time: "08:00",
		Meals: []taskdto.Meal{{Name: "Bowl", MealType: "lunch", Calories: 700}}}, nil
}

func TestPlanIsolatesFailedDays(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	source := scriptedSource{failDates: map[string]bool{"2024-01-16": true}}
	d.Register(NewPlanHandler(b, store, source, NewSessionDedup(), 3, 7))
	responses := captureTopic(b, bus.TopicPlanResponse)

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandGeneratePlan,
		Args:          `{"start_date": "2024-01-15", "day_count": 3}`,
	})
	env := awaitEnvelope(t, responses)
	if !env.Success {
		t.Fatalf("plan failed outright: %s", env.ErrorMessage)
	}

	days := gjson.Get(env.Data, "days")
	if n := days.Get("#").Int(); n != 3 {
		t.Fatalf("expected 3 day results, got %d", n)
	}
	if errText := days.Get("1.error").String(); errText == "" {
		t.Fatal("expected middle day to carry an error")
	}
	for _, idx := range []string{"0", "2"} {
		if n := days.Get(idx + ".created_ids.#").Int(); n != 2 {
			t.Fatalf("expected day %s to create 2 tasks, got %d", idx, n)
		}
	}
	if store.Len() != 4 {
		t.Fatalf("expected 4 stored tasks, got %d", store.Len())
	}
}

func TestPlanRetryAfterStoreFailure(t *testing.T) {
	b := bus.New()
	store := &flakyStore{MemoryStore: taskstore.NewMemoryStore(), failOn: 1}
	d := NewDispatcher(b)
	d.Register(NewPlanHandler(b, store, scriptedSource{}, NewSessionDedup(), 3, 7))
	responses := captureTopic(b, bus.TopicPlanResponse)

	args := `{"start_date": "2024-01-15", "day_count": 1}`
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c1", Command: CommandGeneratePlan, Args: args})

	first := awaitEnvelope(t, responses)
	if errText := gjson.Get(first.Data, "days.0.error").String(); errText == "" {
		t.Fatal("expected the failed insert to surface as a day error")
	}
	if store.Len() != 0 {
		t.Fatalf("failed insert must not store, got %d tasks", store.Len())
	}

	// The same plan request must regenerate the day, not hit the
	// dedup guard.
	d.Dispatch(context.Background(), bus.Envelope{CorrelationID: "c2", Command: CommandGeneratePlan, Args: args})
	second := awaitEnvelope(t, responses)
	if n := gjson.Get(second.Data, "days.0.created_ids.#").Int(); n != 2 {
		t.Fatalf("expected retry to create both tasks, got %d", n)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 stored tasks, got %d", store.Len())
	}
}

func TestPlanDayCountDefaultsAndCap(t *testing.T) {
	b := bus.New()
	store := taskstore.NewMemoryStore()
	d := NewDispatcher(b)
	handler := NewPlanHandler(b, store, scriptedSource{}, NewSessionDedup(), 3, 7)
	d.Register(handler)
	responses := captureTopic(b, bus.TopicPlanResponse)

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c1",
		Command:       CommandGeneratePlan,
		Args:          `{"start_date": "2024-01-15", "include_nutrition": false}`,
	})
	defaulted := awaitEnvelope(t, responses)
	if n := gjson.Get(defaulted.Data, "days.#").Int(); n != 3 {
		t.Fatalf("expected default of 3 days, got %d", n)
	}

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c2",
		Command:       CommandGeneratePlan,
		Args:          `{"start_date": "2024-02-01", "day_count": 30, "include_nutrition": false}`,
	})
	capped := awaitEnvelope(t, responses)
	if n := gjson.Get(capped.Data, "days.#").Int(); n != 7 {
		t.Fatalf("expected cap at 7 days, got %d", n)
	}

	d.Dispatch(context.Background(), bus.Envelope{
		CorrelationID: "c3",
		Command:       CommandGeneratePlan,
		Args:          `{"start_date": "2024-03-01", "include_workout": false, "include_nutrition": false}`,
	})
	neither := awaitEnvelope(t, responses)
	if neither.Success || neither.ErrorCode != CodeDecodeError {
		t.Fatalf("expected DECODE_ERROR when both kinds disabled, got %+v", neither)
	}
}
