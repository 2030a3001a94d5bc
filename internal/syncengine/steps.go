package syncengine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/untoldecay/cfaitgo/internal/ics"
	"github.com/untoldecay/cfaitgo/internal/model"
)

// stepOutcomeKind discriminates StepOutcome's payload (spec §4.9 step
// table).
type stepOutcomeKind int

const (
	outcomeSuccess stepOutcomeKind = iota
	outcomeRetryWith
	outcomeDiscard
	outcomeRecoveryNeeded
)

// StepOutcome is the result of attempting one journal action against the
// server (spec §4.9).
type StepOutcome struct {
	Kind stepOutcomeKind

	// outcomeSuccess
	Etag        string
	Href        string
	RefreshPath string

	// outcomeRetryWith
	Retry *model.Action

	// outcomeRecoveryNeeded
	RecoveryMessage string
}

// StepResult pairs an outcome with any user-facing warnings accumulated
// along the way.
type StepResult struct {
	Outcome  StepOutcome
	Warnings []string
}

func success(etag, href, refreshPath string) StepResult {
	return StepResult{Outcome: StepOutcome{Kind: outcomeSuccess, Etag: etag, Href: href, RefreshPath: refreshPath}}
}

func discard() StepResult { return StepResult{Outcome: StepOutcome{Kind: outcomeDiscard}} }

func recoveryNeeded(msg string) StepResult {
	return StepResult{Outcome: StepOutcome{Kind: outcomeRecoveryNeeded, RecoveryMessage: msg}}
}

func retryWith(a model.Action) StepResult {
	return StepResult{Outcome: StepOutcome{Kind: outcomeRetryWith, Retry: &a}}
}

func (r StepResult) warn(msg string) StepResult {
	r.Warnings = append(r.Warnings, msg)
	return r
}

func taskHref(calendarHref, uid string) string {
	filename := uid + ".ics"
	if strings.HasSuffix(calendarHref, "/") {
		return calendarHref + filename
	}
	return calendarHref + "/" + filename
}

// classifyError classifies a status code the way the original's
// string-matched error categories do: bad request shapes go to recovery,
// oversized payloads are discarded, everything else is a hard error worth
// aborting the whole drain for (spec §4.9 step table).
func classifyError(err error) StepResult {
	switch {
	case IsStatus(err, 403), IsStatus(err, 400), IsStatus(err, 415):
		return recoveryNeeded(err.Error())
	case IsStatus(err, 413):
		return discard().warn(err.Error())
	default:
		return StepResult{} // caller treats zero-value Kind as "propagate as hard error"
	}
}

func (e *Engine) handleCreate(ctx context.Context, task *model.Task) (StepResult, error) {
	fullHref := taskHref(task.CalendarHref, task.UID)
	path := StripHost(fullHref)
	body := ics.ToICS(task)

	etag, err := e.transport.Put(ctx, path, "text/calendar", body, "", true)
	if err == nil {
		return success(etag, fullHref, path), nil
	}

	if IsStatus(err, 412) {
		return success("", "", path).warn("Creation conflict: task '" + task.Summary + "' already exists on server. Marking as synced."), nil
	}

	res := classifyError(err)
	if res.Outcome.Kind == outcomeRecoveryNeeded || res.Outcome.Kind == outcomeDiscard {
		return res, nil
	}
	return StepResult{}, err
}

func (e *Engine) handleUpdate(ctx context.Context, task *model.Task) (StepResult, error) {
	var path string
	reconstructed := task.Href == ""
	if reconstructed {
		path = StripHost(taskHref(task.CalendarHref, task.UID))
	} else {
		path = StripHost(task.Href)
	}

	body := ics.ToICS(task)
	ifMatch := task.Etag
	if ifMatch == model.PendingRefreshEtag {
		ifMatch = ""
	}

	etag, err := e.transport.Put(ctx, path, "text/calendar; charset=utf-8; component=VTODO", body, ifMatch, false)
	if err == nil {
		var newHref string
		if reconstructed {
			newHref = taskHref(task.CalendarHref, task.UID)
		}
		return success(etag, newHref, path), nil
	}

	switch {
	case IsStatus(err, 412):
		if resolution, msg, ok := e.attemptConflictResolution(ctx, task); ok {
			return retryWith(resolution).warn(msg), nil
		}
		copyAction := conflictCopy(task)
		return retryWith(copyAction).warn("Conflict (412) on task '" + task.Summary + "'. Merge failed. Creating copy."), nil
	case IsStatus(err, 404):
		return retryWith(model.Action{Kind: model.ActionCreate, Task: task}), nil
	}

	res := classifyError(err)
	if res.Outcome.Kind == outcomeRecoveryNeeded || res.Outcome.Kind == outcomeDiscard {
		return res, nil
	}
	return StepResult{}, err
}

func conflictCopy(task *model.Task) model.Action {
	c := task.Clone()
	c.UID = uuid.NewString()
	c.Summary = c.Summary + " (Conflict Copy)"
	c.Href = ""
	c.Etag = ""
	return model.Action{Kind: model.ActionCreate, Task: c}
}

func (e *Engine) handleDelete(ctx context.Context, task *model.Task) (StepResult, error) {
	if task.Href == "" {
		return discard(), nil
	}
	path := StripHost(task.Href)
	ifMatch := task.Etag
	if ifMatch == model.PendingRefreshEtag {
		ifMatch = ""
	}

	err := e.transport.Delete(ctx, path, ifMatch)
	if err == nil {
		return success("", "", ""), nil
	}
	switch {
	case IsStatus(err, 404):
		return discard(), nil
	case IsStatus(err, 412):
		return success("", "", "").warn("Conflict on delete task '" + task.Summary + "'. Already modified/deleted."), nil
	}
	res := classifyError(err)
	if res.Outcome.Kind == outcomeDiscard {
		return res, nil
	}
	if res.Outcome.Kind == outcomeRecoveryNeeded {
		// Deletes that fail permissions checks cannot be meaningfully
		// recovered: discard rather than quarantine, matching the original.
		return discard().warn(res.Outcome.RecoveryMessage), nil
	}
	return StepResult{}, err
}

func (e *Engine) handleMove(ctx context.Context, task *model.Task, newCalendarHref string) (StepResult, error) {
	err := e.executeMove(ctx, task, newCalendarHref, false)
	if err != nil && (IsStatus(err, 412)) {
		err = e.executeMove(ctx, task, newCalendarHref, true)
	}
	if err == nil {
		newHref := taskHref(newCalendarHref, task.UID)
		return success("", newHref, StripHost(newHref)), nil
	}

	switch {
	case IsStatus(err, 404), IsStatus(err, 403):
		return discard().warn("Move source missing for '" + task.Summary + "', assuming success."), nil
	case IsStatus(err, 400), IsStatus(err, 415):
		return recoveryNeeded(err.Error()), nil
	}
	return StepResult{}, err
}

func (e *Engine) executeMove(ctx context.Context, task *model.Task, newCalendarHref string, overwrite bool) error {
	destination := taskHref(newCalendarHref, task.UID)
	destPath := StripHost(destination)
	if !strings.HasPrefix(destPath, "/") {
		destPath = "/" + destPath
	}
	base := e.transport.BaseURL()
	absolute := base.Scheme + "://" + base.Host + destPath
	return e.transport.Move(ctx, StripHost(task.Href), absolute, overwrite)
}

// attemptConflictResolution retries a 412 by three-way-merging the cached
// base, the queued local task, and the current server copy (spec §4.9.1).
func (e *Engine) attemptConflictResolution(ctx context.Context, localTask *model.Task) (model.Action, string, bool) {
	cache := e.remoteCache.Load(localTask.CalendarHref)
	var base *model.Task
	for _, t := range cache.Tasks {
		if t.UID == localTask.UID {
			base = t
			break
		}
	}
	if base == nil {
		return model.Action{}, "", false
	}

	_, body, err := e.transport.Get(ctx, StripHost(localTask.Href))
	if err != nil {
		return model.Action{}, "", false
	}
	serverTask, err := ics.FromICS(body)
	if err != nil {
		return model.Action{}, "", false
	}

	merged := model.ThreeWayMerge(base, localTask, serverTask)
	if merged == nil {
		return model.Action{}, "", false
	}
	msg := "Conflict (412) on '" + localTask.Summary + "' resolved via 3-way merge."
	return model.Action{Kind: model.ActionUpdate, Task: merged}, msg, true
}
