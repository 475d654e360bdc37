package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/maverikod/docanalyzer/internal/facade"
	"github.com/maverikod/docanalyzer/internal/master"
	"github.com/maverikod/docanalyzer/internal/model"
)

// MasterHandler adapts a *master.Master and a facade.Facade into a
// RequestHandler, translating the Master's WorkerRecord table into the
// daemon's wire result types.
type MasterHandler struct {
	Master  *master.Master
	Facade  facade.Facade
	started time.Time
}

// NewMasterHandler builds a MasterHandler over an already-constructed
// Master.
func NewMasterHandler(m *master.Master, fac facade.Facade) *MasterHandler {
	return &MasterHandler{Master: m, Facade: fac, started: time.Now()}
}

func (h *MasterHandler) HealthCheck(ctx context.Context) map[string]string {
	if h.Facade == nil {
		return map[string]string{}
	}
	return h.Facade.Health(ctx)
}

func (h *MasterHandler) SystemStats(ctx context.Context) SystemStatsResult {
	records := h.Master.WorkerRecords()
	running := 0
	for _, r := range records {
		if r.State == model.WorkerRunning || r.State == model.WorkerStarting || r.State == model.WorkerPending {
			running++
		}
	}
	return SystemStatsResult{
		PID:                os.Getpid(),
		Uptime:             time.Since(h.started).Round(time.Second).String(),
		WatchedDirectories: len(records),
		RunningWorkers:     running,
	}
}

func (h *MasterHandler) ProcessingStats(ctx context.Context) map[string]any {
	snap := h.Master.Stats()
	return map[string]any{
		"files_seen":   snap.FilesSeen,
		"files_ok":     snap.FilesOK,
		"files_failed": snap.FilesFailed,
		"restarts":     snap.Restarts,
	}
}

func (h *MasterHandler) QueueStatus(ctx context.Context) []WatchStatusResult {
	return h.ListWatchedDirectories(ctx)
}

func (h *MasterHandler) StartWatching(ctx context.Context, dir string) error {
	return h.Master.Admit(ctx, dir)
}

func (h *MasterHandler) StopWatching(ctx context.Context, dir string) error {
	if _, ok := h.findRecord(dir); !ok {
		return fmt.Errorf("directory not watched: %s", dir)
	}
	return h.Master.StopDirectory(dir)
}

func (h *MasterHandler) WatchStatus(ctx context.Context, dir string) (WatchStatusResult, bool) {
	rec, ok := h.findRecord(dir)
	if !ok {
		return WatchStatusResult{}, false
	}
	return toWatchStatus(rec), true
}

func (h *MasterHandler) ListWatchedDirectories(ctx context.Context) []WatchStatusResult {
	records := h.Master.WorkerRecords()
	out := make([]WatchStatusResult, 0, len(records))
	for _, r := range records {
		out = append(out, toWatchStatus(r))
	}
	return out
}

func (h *MasterHandler) findRecord(dir string) (model.WorkerRecord, bool) {
	for _, r := range h.Master.WorkerRecords() {
		if r.Directory == dir {
			return r, true
		}
	}
	return model.WorkerRecord{}, false
}

func toWatchStatus(r model.WorkerRecord) WatchStatusResult {
	status := WatchStatusResult{
		Directory:     r.Directory,
		State:         string(r.State),
		PID:           r.PID,
		FilesSeen:     r.FilesSeen,
		FilesOK:       r.FilesOK,
		FilesFailed:   r.FilesFailed,
		LastHeartbeat: r.LastHeartbeat.Format(time.RFC3339),
	}
	if r.LastError != nil {
		status.LastError = r.LastError.Error()
	}
	return status
}
