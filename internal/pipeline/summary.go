package pipeline

import (
	"time"

	"github.com/yourorg/octant-daoip5/internal/convert"
	"github.com/yourorg/octant-daoip5/internal/model"
)

// SummaryDocument is the generation_summary.json body written at the end of
// a run.
type SummaryDocument struct {
	ConversionCompletedAt string        `json:"conversion_completed_at"`
	EpochsProcessed       []int         `json:"epochs_processed"`
	TotalEpochsProcessed  int           `json:"total_epochs_processed"`
	CurrentEpoch          int           `json:"current_epoch"`
	CommandUsed           string        `json:"command_used"`
	RunID                 string        `json:"run_id"`
	FilesGenerated        []string      `json:"files_generated"`
	DataFreshness         DataFreshness `json:"data_freshness"`
}

// DataFreshness records where and when the data was fetched. SyncStatus is
// the indexed-epoch response, or the string "unavailable" when the backend
// could not report it.
type DataFreshness struct {
	APIEndpoint   string `json:"api_endpoint"`
	DataFetchedAt string `json:"data_fetched_at"`
	SyncStatus    any    `json:"sync_status"`
}

func (r *Runner) buildSummary(builder *convert.Builder, epochs []int, current int, syncStatus any, files []string) *SummaryDocument {
	return &SummaryDocument{
		ConversionCompletedAt: time.Now().UTC().Format(time.RFC3339),
		EpochsProcessed:       epochs,
		TotalEpochsProcessed:  len(epochs),
		CurrentEpoch:          current,
		CommandUsed:           r.command,
		RunID:                 builder.RunID(),
		FilesGenerated:        files,
		DataFreshness: DataFreshness{
			APIEndpoint:   r.cfg.BaseURL,
			DataFetchedAt: time.Now().UTC().Format(time.RFC3339),
			SyncStatus:    syncStatus,
		},
	}
}

func indexedOrUnavailable(indexed *model.IndexedEpoch) any {
	if indexed == nil {
		return "unavailable"
	}
	return indexed
}
