// Package export writes JSONL snapshots of the event log to files or
// S3-compatible buckets, once or on an interval.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
)

// FormatVersion is written in the header line.
const FormatVersion = "1"

// Source is the subset of store.Log an export reads from.
type Source interface {
	Query(ctx context.Context, f store.QueryFilter) (store.QueryResult, error)
	Count(ctx context.Context) (int64, error)
}

// Header is the first JSONL line written by ExportJSONL.
type Header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Service     string    `json:"service"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int64     `json:"record_count"`
}

// line wraps a single record with a type discriminator.
type line struct {
	Type string       `json:"type"`
	Data event.Record `json:"data"`
}

// ExportJSONL writes a header and then every record in insertion order.
// The snapshot covers the records present when the export started;
// records appended while it runs are left for the next export.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) (int64, error) {
	total, err := src.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(Header{
		Version:     FormatVersion,
		Type:        "header",
		Service:     appinfo.ServiceName,
		Timestamp:   time.Now().UTC(),
		RecordCount: total,
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	var written int64
	filter := store.QueryFilter{Limit: store.MaxLimit}
	for written < total {
		res, err := src.Query(ctx, filter)
		if err != nil {
			return written, fmt.Errorf("query records: %w", err)
		}
		for _, rec := range res.Items {
			if rec.Seq > total {
				return written, nil
			}
			if err := enc.Encode(line{Type: "record", Data: rec}); err != nil {
				return written, fmt.Errorf("encode record %d: %w", rec.Seq, err)
			}
			written++
		}
		if res.NextCursor == nil {
			break
		}
		filter.Cursor = res.NextCursor
	}
	return written, nil
}

// Snapshot renders ExportJSONL into memory.
func Snapshot(ctx context.Context, src Source) ([]byte, int64, error) {
	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, src, &buf)
	if err != nil {
		return nil, n, err
	}
	return buf.Bytes(), n, nil
}
