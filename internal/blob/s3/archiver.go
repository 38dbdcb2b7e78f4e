package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/predictfi/predict-go/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 5 * 1024 * 1024

// TradeEventArchiveStore is the read surface the archiver needs: just the
// time-ranged listing, not the full store interface.
type TradeEventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeEvent, error)
}

// ArchiveImpl implements domain.Archiver by querying the trade-event store
// for aged records, serializing them to JSONL, and uploading the result to
// S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer *Writer
	events TradeEventArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer *Writer, events TradeEventArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, events: events}
}

// ArchiveTradeEvents queries all trade events before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at
// archive/trade_events/YYYY-MM.jsonl. Returns the count of archived records.
func (a *ArchiveImpl) ArchiveTradeEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade events marshal: %w", err)
	}

	path := archivePath("trade_events", before)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade events upload: %w", err)
	}

	return int64(len(events)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trade_events/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
