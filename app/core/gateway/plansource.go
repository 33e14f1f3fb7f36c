package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
	"github.com/tidwall/gjson"

	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
)

const workoutPlanPrompt = `Produce one workout task for %s as a single JSON object, no prose:
{"title": string, "time": "HH:MM", "category": string, "total_duration": minutes, "exercises": [{"name": string, "sets": int, "reps": int, "duration_min": int}]}`

const nutritionPlanPrompt = `Produce one day of meals for %s as a single JSON object, no prose:
{"title": string, "time": "HH:MM", "category": string, "total_calories": int, "meals": [{"name": string, "meal_type": string, "calories": int}]}`

// ModelPlanSource asks the model for one day of generated tasks. It is
// the production PlanSource behind generate_multi_day_plan.
type ModelPlanSource struct {
	gw *OpenAIGateway
}

func NewModelPlanSource(gw *OpenAIGateway) *ModelPlanSource {
	return &ModelPlanSource{gw: gw}
}

func (s *ModelPlanSource) GenerateWorkout(ctx context.Context, date string) (taskdto.TaskDTO, error) {
	raw, err := s.completeJSON(ctx, fmt.Sprintf(workoutPlanPrompt, date))
	if err != nil {
		return taskdto.TaskDTO{}, err
	}
	return ParsePlanTask(raw, taskdto.KindWorkout, date)
}

func (s *ModelPlanSource) GenerateNutrition(ctx context.Context, date string) (taskdto.TaskDTO, error) {
	raw, err := s.completeJSON(ctx, fmt.Sprintf(nutritionPlanPrompt, date))
	if err != nil {
		return taskdto.TaskDTO{}, err
	}
	return ParsePlanTask(raw, taskdto.KindNutrition, date)
}

func (s *ModelPlanSource) completeJSON(ctx context.Context, prompt string) (string, error) {
	completion, err := s.gw.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.gw.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You output exactly one JSON object and nothing else."),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("gateway: plan completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("gateway: empty plan completion")
	}
	return completion.Choices[0].Message.Content, nil
}

// ParsePlanTask extracts a generated task from model output. Markdown
// fences and surrounding prose are tolerated; the first JSON object
// wins.
func ParsePlanTask(raw string, kind string, date string) (taskdto.TaskDTO, error) {
	body := extractJSONObject(raw)
	if body == "" || !gjson.Valid(body) {
		return taskdto.TaskDTO{}, fmt.Errorf("gateway: no JSON object in plan output")
	}

	dto := taskdto.TaskDTO{
		Kind:          kind,
		Title:         strings.TrimSpace(gjson.Get(body, "title").String()),
		Date:          date,
		Time:          strings.TrimSpace(gjson.Get(body, "time").String()),
		Category:      strings.TrimSpace(gjson.Get(body, "category").String()),
		TotalDuration: int(gjson.Get(body, "total_duration").Int()),
		TotalCalories: int(gjson.Get(body, "total_calories").Int()),
	}
	if dto.Title == "" {
		return taskdto.TaskDTO{}, fmt.Errorf("gateway: plan output missing title")
	}

	switch kind {
	case taskdto.KindWorkout:
		if field := gjson.Get(body, "exercises"); field.IsArray() {
			if err := json.Unmarshal([]byte(field.Raw), &dto.Exercises); err != nil {
				return taskdto.TaskDTO{}, fmt.Errorf("gateway: decode exercises: %w", err)
			}
		}
	case taskdto.KindNutrition:
		if field := gjson.Get(body, "meals"); field.IsArray() {
			if err := json.Unmarshal([]byte(field.Raw), &dto.Meals); err != nil {
				return taskdto.TaskDTO{}, fmt.Errorf("gateway: decode meals: %w", err)
			}
		}
	}
	return dto, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// StaticPlanSource is the offline fallback when no model is
// configured: a small rotating template keyed by weekday.
type StaticPlanSource struct{}

var staticWorkouts = []taskdto.TaskDTO{
	{Title: "Full-body strength", Time: "07:00", Category: "strength", TotalDuration: 45,
		Exercises: []taskdto.Exercise{{Name: "Squat", Sets: 4, Reps: 8}, {Name: "Push-up", Sets: 4, Reps: 12}, {Name: "Row", Sets: 4, Reps: 10}}},
	{Title: "Easy run", Time: "07:30", Category: "cardio", TotalDuration: 30,
		Exercises: []taskdto.Exercise{{Name: "Run", DurationMin: 30}}},
	{Title: "Mobility and core", Time: "18:00", Category: "mobility", TotalDuration: 25,
		Exercises: []taskdto.Exercise{{Name: "Plank", Sets: 3, DurationMin: 2}, {Name: "Hip stretch", DurationMin: 10}}},
}

var staticNutrition = []taskdto.TaskDTO{
	{Title: "Balanced day", Time: "08:00", Category: "balanced", TotalCalories: 2100,
		Meals: []taskdto.Meal{{Name: "Oatmeal with berries", MealType: "breakfast", Calories: 450}, {Name: "Chicken bowl", MealType: "lunch", Calories: 750}, {Name: "Salmon and greens", MealType: "dinner", Calories: 900}}},
	{Title: "High-protein day", Time: "08:00", Category: "protein", TotalCalories: 2200,
		Meals: []taskdto.Meal{{Name: "Egg scramble", MealType: "breakfast", Calories: 500}, {Name: "Turkey wrap", MealType: "lunch", Calories: 700}, {Name: "Beef stir-fry", MealType: "dinner", Calories: 1000}}},
}

func (StaticPlanSource) GenerateWorkout(ctx context.Context, date string) (taskdto.TaskDTO, error) {
	_ = ctx
	dto, err := pickTemplate(staticWorkouts, date)
	if err != nil {
		return taskdto.TaskDTO{}, err
	}
	dto.Kind = taskdto.KindWorkout
	dto.Date = date
	return dto, nil
}

func (StaticPlanSource) GenerateNutrition(ctx context.Context, date string) (taskdto.TaskDTO, error) {
	_ = ctx
	dto, err := pickTemplate(staticNutrition, date)
	if err != nil {
		return taskdto.TaskDTO{}, err
	}
	dto.Kind = taskdto.KindNutrition
	dto.Date = date
	return dto, nil
}

func pickTemplate(templates []taskdto.TaskDTO, date string) (taskdto.TaskDTO, error) {
	parsed, err := time.Parse(taskdto.DateLayout, date)
	if err != nil {
		return taskdto.TaskDTO{}, fmt.Errorf("gateway: invalid plan date %q", date)
	}
	return templates[int(parsed.Weekday())%len(templates)], nil
}
