package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/LEOK66/Modo-sub004/app/core/bus"
	"github.com/LEOK66/Modo-sub004/app/core/coordinator"
	"github.com/LEOK66/Modo-sub004/app/core/dispatch"
	"github.com/LEOK66/Modo-sub004/app/core/heuristics"
	"github.com/LEOK66/Modo-sub004/app/core/taskdto"
	"github.com/LEOK66/Modo-sub004/app/pkg/logger"
	"github.com/LEOK66/Modo-sub004/app/pkg/types"
)

const recentUtteranceWindow = 10

const apologyText = "Sorry, I couldn't finish that: %s"

// Session is the conversation surface over the coordinator: it feeds
// the transcript to the model gateway, executes the tool calls it
// emits, and renders the outcomes as short confirmations.
type Session struct {
	gateway types.ModelGateway
	coord   *coordinator.Coordinator

	history    []types.ChatMessage
	recentUser []string
	now        func() time.Time
}

func New(gateway types.ModelGateway, coord *coordinator.Coordinator) *Session {
	return &Session{
		gateway: gateway,
		coord:   coord,
		now:     time.Now,
	}
}

// HandleUserMessage runs one conversation turn.
func (s *Session) HandleUserMessage(ctx context.Context, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil
	}
	s.history = append(s.history, types.ChatMessage{Role: types.ChatRoleUser, Content: trimmed})
	s.recentUser = append(s.recentUser, trimmed)
	if len(s.recentUser) > recentUtteranceWindow {
		s.recentUser = s.recentUser[len(s.recentUser)-recentUtteranceWindow:]
	}

	result, err := s.gateway.CompleteChat(ctx, s.history)
	if err != nil {
		return "", err
	}

	if len(result.ToolCalls) == 0 {
		s.history = append(s.history, types.ChatMessage{Role: types.ChatRoleAssistant, Content: result.Text})
		return result.Text, nil
	}

	lines := make([]string, 0, len(result.ToolCalls)+1)
	if result.Text != "" {
		lines = append(lines, result.Text)
	}
	for _, call := range result.ToolCalls {
		args := s.enrichArguments(call.Name, call.Arguments)
		resp, execErr := s.coord.Execute(ctx, call.Name, args)
		lines = append(lines, renderOutcome(call.Name, resp, execErr))
	}

	reply := strings.Join(lines, "\n")
	s.history = append(s.history, types.ChatMessage{Role: types.ChatRoleAssistant, Content: reply})
	return reply, nil
}

// enrichArguments fills structured fields the model omitted from the
// heuristics over recent user utterances. Fields the model did supply
// are never touched.
func (s *Session) enrichArguments(command string, raw string) string {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	derivedDate := heuristics.DeriveDate(s.recentUser, s.now()).Format(taskdto.DateLayout)

	switch command {
	case dispatch.CommandReadTasks, dispatch.CommandUpdateTask, dispatch.CommandDeleteTask:
		if !gjson.Get(raw, "date").Exists() {
			raw, _ = sjson.Set(raw, "date", derivedDate)
		}
	case dispatch.CommandGeneratePlan:
		if !gjson.Get(raw, "start_date").Exists() {
			raw, _ = sjson.Set(raw, "start_date", derivedDate)
		}
		if !gjson.Get(raw, "day_count").Exists() {
			raw, _ = sjson.Set(raw, "day_count", heuristics.DeriveDayCount(s.recentUser))
		}
	case dispatch.CommandCreateTask:
		tasks := gjson.Get(raw, "tasks")
		if tasks.IsArray() {
			for i, task := range tasks.Array() {
				if !task.Get("date").Exists() {
					raw, _ = sjson.Set(raw, fmt.Sprintf("tasks.%d.date", i), derivedDate)
				}
			}
		}
	}
	return raw
}

// renderOutcome turns one response into a user-facing line. Failures
// become a short apology instead of a raw error.
func renderOutcome(command string, resp coordinator.Response, err error) string {
	if err != nil {
		if errors.Is(err, bus.ErrTimeout) {
			logger.Error("[Session] command %s timed out (correlation=%s)", command, resp.CorrelationID)
			return fmt.Sprintf(apologyText, "the request timed out, please try again")
		}
		return fmt.Sprintf(apologyText, err.Error())
	}
	if !resp.Success {
		if resp.ErrorCode == dispatch.CodeConfirmRequired {
			return "Just to be safe: should I really delete that task? Say yes to confirm."
		}
		return fmt.Sprintf(apologyText, resp.ErrorMessage)
	}

	switch command {
	case dispatch.CommandCreateTask:
		created := gjson.Get(resp.Data, "created_ids.#").Int()
		skipped := gjson.Get(resp.Data, "skipped").Int()
		if created == 0 && skipped > 0 {
			return "Those tasks already exist, so I left everything as it was."
		}
		return fmt.Sprintf("Added %d task(s) to your plan.", created)
	case dispatch.CommandReadTasks:
		total := gjson.Get(resp.Data, "total").Int()
		completed := gjson.Get(resp.Data, "completed_tasks").Int()
		if total == 0 {
			return "You have nothing scheduled there."
		}
		summary := make([]string, 0, total)
		gjson.Get(resp.Data, "tasks").ForEach(func(_, task gjson.Result) bool {
			line := "- " + task.Get("title").String()
			if display := task.Get("display_time").String(); display != "" {
				line += " at " + display
			}
			if task.Get("is_done").Bool() {
				line += " (done)"
			}
			summary = append(summary, line)
			return true
		})
		header := fmt.Sprintf("You have %d task(s), %d done:", total, completed)
		return header + "\n" + strings.Join(summary, "\n")
	case dispatch.CommandUpdateTask:
		title := gjson.Get(resp.Data, "task.title").String()
		return fmt.Sprintf("Updated %q.", title)
	case dispatch.CommandDeleteTask:
		return "Deleted the task."
	case dispatch.CommandGeneratePlan:
		days := gjson.Get(resp.Data, "days")
		planned := 0
		failed := 0
		days.ForEach(func(_, day gjson.Result) bool {
			if day.Get("error").Exists() {
				failed++
			} else {
				planned += int(day.Get("created_ids.#").Int())
			}
			return true
		})
		if failed > 0 {
			return fmt.Sprintf("Planned %d task(s); %d day(s) could not be generated.", planned, failed)
		}
		return fmt.Sprintf("Planned %d task(s) across %d day(s).", planned, int(days.Get("#").Int()))
	default:
		return "Done."
	}
}
