// Package commands implements the corelink-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Category  *log.Category
	Transport string
	ConnID    string
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] CATEGORY TypeLabel
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)

	var typeLabel string
	switch {
	case event.StateChange != nil:
		typeLabel = event.StateChange.Component
	case event.Retry != nil:
		typeLabel = "Retry"
	case event.Queue != nil:
		typeLabel = "Queue"
	case event.Error != nil:
		typeLabel = event.Error.Op
	case event.Endpoint != "":
		typeLabel = event.Endpoint
	default:
		typeLabel = "-"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-7s %s\n", ts, connID, event.Category.String(), typeLabel)

	if event.Transport != "" {
		fmt.Fprintf(w, "  Transport: %s\n", event.Transport)
	}
	if event.Endpoint != "" && event.Category != log.CategoryRequest {
		fmt.Fprintf(w, "  Endpoint: %s\n", event.Endpoint)
	}

	// Type-specific details
	switch {
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Retry != nil:
		formatRetryDetails(w, event.Retry)
	case event.Queue != nil:
		formatQueueDetails(w, event.Queue)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.From != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.From, sc.To)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.To)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatRetryDetails writes retry scheduling details.
func formatRetryDetails(w io.Writer, r *log.RetryEvent) {
	fmt.Fprintf(w, "  Attempt: %d\n", r.Attempt)
	fmt.Fprintf(w, "  Delay: %s\n", formatDuration(r.Delay))
	if r.Breaker {
		fmt.Fprintln(w, "  Breaker: open")
	}
}

// formatQueueDetails writes offline queue details.
func formatQueueDetails(w io.Writer, q *log.QueueEvent) {
	fmt.Fprintf(w, "  Operation: %s\n", q.OperationID)
	if q.ResourceKey != "" {
		fmt.Fprintf(w, "  Resource: %s\n", q.ResourceKey)
	}
	fmt.Fprintf(w, "  Status: %s\n", q.Status)
	if q.RetryCount > 0 {
		fmt.Fprintf(w, "  Retries: %d\n", q.RetryCount)
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, e *log.ErrorEvent) {
	fmt.Fprintf(w, "  Op: %s\n", e.Op)
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseCategoryFlag parses a category string from a command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "state":
		return log.CategoryState, nil
	case "request":
		return log.CategoryRequest, nil
	case "retry":
		return log.CategoryRetry, nil
	case "queue":
		return log.CategoryQueue, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be state, request, retry, queue, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, log.Filter{
		ConnectionID: filter.ConnID,
		Category:     filter.Category,
		Transport:    filter.Transport,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		formatEvent(output, event)
	}

	return nil
}
