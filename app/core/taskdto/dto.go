package taskdto

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindWorkout   = "workout"
	KindNutrition = "nutrition"
	KindCustom    = "custom"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Exercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets,omitempty"`
	Reps        int    `json:"reps,omitempty"`
	DurationMin int    `json:"duration_min,omitempty"`
}

type Meal struct {
	Name     string `json:"name"`
	MealType string `json:"meal_type,omitempty"`
	Calories int    `json:"calories,omitempty"`
}

// TaskDTO is the agent-facing task payload carried inside tool-call
// arguments and responses. Exactly one of Exercises/Meals is populated,
// matching Kind; custom tasks carry neither.
type TaskDTO struct {
	ID            string     `json:"id,omitempty"`
	Kind          string     `json:"type"`
	Title         string     `json:"title"`
	Date          string     `json:"date"`           // YYYY-MM-DD
	Time          string     `json:"time,omitempty"` // HH:MM, 24h
	DisplayTime   string     `json:"display_time,omitempty"`
	Category      string     `json:"category,omitempty"`
	Exercises     []Exercise `json:"exercises,omitempty"`
	Meals         []Meal     `json:"meals,omitempty"`
	TotalDuration int        `json:"total_duration,omitempty"`
	TotalCalories int        `json:"total_calories,omitempty"`
	IsDone        bool       `json:"is_done"`
	IsAIGenerated bool       `json:"is_ai_generated,omitempty"`
	Source        string     `json:"source,omitempty"`
}

func NormalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindWorkout:
		return KindWorkout
	case KindNutrition:
		return KindNutrition
	case KindCustom, "":
		return KindCustom
	default:
		return ""
	}
}

// DedupKey is the session-scoped idempotency guard for generated
// tasks: kind, title and the scheduled moment at second precision.
func DedupKey(dto TaskDTO) string {
	clock := strings.TrimSpace(dto.Time)
	if clock == "" {
		clock = "00:00"
	}
	return fmt.Sprintf("%s|%s|%sT%s:00", NormalizeKind(dto.Kind), strings.TrimSpace(dto.Title), dto.Date, clock)
}

// FormatDisplayTime regenerates the human-facing clock string from the
// stored 24h value. It is display-only and never round-trip compared.
func FormatDisplayTime(clock string) string {
	trimmed := strings.TrimSpace(clock)
	if trimmed == "" {
		return ""
	}
	parsed, err := time.Parse(ClockLayout, trimmed)
	if err != nil {
		return ""
	}
	return parsed.Format("3:04 PM")
}

func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}
