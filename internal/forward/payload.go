package forward

import (
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// MaxRecordsPerBatch caps the number of records in one request body.
const MaxRecordsPerBatch = 50

// Batch is the request body posted to the forward endpoint.
type Batch struct {
	Source  string         `json:"source"`
	SentAt  time.Time      `json:"sent_at"`
	Count   int            `json:"count"`
	Records []event.Record `json:"records"`
}

// BuildBatches splits records into batches of at most MaxRecordsPerBatch,
// preserving order.
func BuildBatches(records []event.Record, now time.Time) []Batch {
	if len(records) == 0 {
		return nil
	}

	var batches []Batch
	for i := 0; i < len(records); i += MaxRecordsPerBatch {
		end := min(i+MaxRecordsPerBatch, len(records))
		batches = append(batches, Batch{
			Source:  appinfo.ServiceName,
			SentAt:  now.UTC(),
			Count:   end - i,
			Records: records[i:end],
		})
	}
	return batches
}
