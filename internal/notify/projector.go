package notify

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidtrack/internal/domain"
)

// JobSource is the read slice of the job store the projector consumes.
type JobSource interface {
	List() iter.Seq[domain.BackgroundJob]
}

type localeCopy struct {
	progressTitle   string
	progressBody    string
	completedTitle  string
	completedBody   string
	failedTitle     string
	failedBody      string
	saveFailedTitle string
	saveFailedBody  string
}

var copyByLocale = map[string]localeCopy{
	"en": {
		progressTitle:   "generating video",
		progressBody:    "sequence is %d%% done",
		completedTitle:  "video ready",
		completedBody:   "your sequence finished and was saved to the library",
		failedTitle:     "generation failed",
		failedBody:      "generation stopped: %s",
		saveFailedTitle: "save failed",
		saveFailedBody:  "the video finished but saving to the library failed: %s",
	},
	"id": {
		progressTitle:   "video sedang dibuat",
		progressBody:    "progres sequence %d%%",
		completedTitle:  "video selesai",
		completedBody:   "sequence Anda selesai dan tersimpan di library",
		failedTitle:     "pembuatan gagal",
		failedBody:      "pembuatan berhenti: %s",
		saveFailedTitle: "penyimpanan gagal",
		saveFailedBody:  "video selesai tetapi gagal disimpan ke library: %s",
	},
}

// Projector builds the notification list the client renders. It is a pure
// read-side view: nothing it produces feeds back into job state. The
// surfaced set is transient on purpose, so synthesized items show as unread
// once per process, not once per device.
type Projector struct {
	center *Center
	jobs   JobSource
	titler cases.Caser

	mu       sync.Mutex
	surfaced map[string]struct{}
}

func NewProjector(center *Center, jobs JobSource) *Projector {
	return &Projector{
		center:   center,
		jobs:     jobs,
		titler:   cases.Title(language.Und),
		surfaced: make(map[string]struct{}),
	}
}

// Project returns the rendered notification list for a locale, newest first.
// Stored terminal items come first-class from the center; running jobs are
// projected as progress items; terminal jobs with no stored item (jobs that
// finished before a restart) are synthesized so the outcome is never lost.
func (p *Projector) Project(locale string) []domain.Notification {
	c, ok := copyByLocale[locale]
	if !ok {
		c = copyByLocale["en"]
	}

	jobsByTask := make(map[string]domain.BackgroundJob)
	var out []domain.Notification

	for job := range p.jobs.List() {
		jobsByTask[job.TaskID] = job
		if job.Status == domain.JobStatusRunning || job.Status == domain.JobStatusPending {
			out = append(out, domain.Notification{
				ID:        "progress-" + job.TaskID,
				TaskID:    job.TaskID,
				Kind:      domain.NotificationProgress,
				Title:     p.titler.String(c.progressTitle),
				Message:   fmt.Sprintf(c.progressBody, job.OverallProgress()),
				Priority:  domain.PriorityNormal,
				Progress:  job.OverallProgress(),
				Read:      true,
				CreatedAt: job.UpdatedAt,
			})
		}
	}

	for _, item := range p.center.Items() {
		out = append(out, p.render(item, c))
	}

	for taskID, job := range jobsByTask {
		if !job.Status.Terminal() || p.center.HasTask(taskID) {
			continue
		}
		item := domain.Notification{
			ID:        "terminal-" + taskID,
			TaskID:    taskID,
			Priority:  domain.PriorityHigh,
			CreatedAt: job.UpdatedAt,
			Read:      p.wasSurfaced("terminal-" + taskID),
		}
		switch job.Status {
		case domain.JobStatusCompleted:
			item.Kind = domain.NotificationCompleted
		case domain.JobStatusError:
			item.Kind = domain.NotificationFailed
			item.Message = job.Error
		}
		out = append(out, p.render(item, c))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Unread counts the unread items of one projected list. It takes the list
// rather than projecting again: Project records first sight of synthesized
// items, so a second projection would flip them to read.
func Unread(items []domain.Notification) int {
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n
}

func (p *Projector) render(item domain.Notification, c localeCopy) domain.Notification {
	switch item.Kind {
	case domain.NotificationCompleted:
		item.Title = p.titler.String(c.completedTitle)
		item.Message = c.completedBody
	case domain.NotificationFailed:
		item.Title = p.titler.String(c.failedTitle)
		item.Message = fmt.Sprintf(c.failedBody, item.Message)
	case domain.NotificationSaveFailed:
		item.Title = p.titler.String(c.saveFailedTitle)
		item.Message = fmt.Sprintf(c.saveFailedBody, item.Message)
	}
	return item
}

// wasSurfaced reports whether the id was projected before, and records it
// either way. First sight renders unread, every later projection read.
func (p *Projector) wasSurfaced(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, seen := p.surfaced[id]
	p.surfaced[id] = struct{}{}
	return seen
}
