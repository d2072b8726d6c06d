package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/corelink-proto/corelink-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// exportEvent is the JSON shape for one exported event.
type exportEvent struct {
	Timestamp    string                `json:"timestamp"`
	ConnectionID string                `json:"connection_id,omitempty"`
	Category     string                `json:"category"`
	Transport    string                `json:"transport,omitempty"`
	Endpoint     string                `json:"endpoint,omitempty"`
	StateChange  *log.StateChangeEvent `json:"state_change,omitempty"`
	Retry        *log.RetryEvent       `json:"retry,omitempty"`
	Queue        *log.QueueEvent       `json:"queue,omitempty"`
	Error        *log.ErrorEvent       `json:"error,omitempty"`
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		out := exportEvent{
			Timestamp:    event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			ConnectionID: event.ConnectionID,
			Category:     event.Category.String(),
			Transport:    event.Transport,
			Endpoint:     event.Endpoint,
			StateChange:  event.StateChange,
			Retry:        event.Retry,
			Queue:        event.Queue,
			Error:        event.Error,
		}
		if err := encoder.Encode(out); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	// Write header
	header := []string{"timestamp", "connection_id", "category", "transport", "endpoint", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		// One-line summary of the type-specific payload
		detail := ""
		switch {
		case event.StateChange != nil:
			detail = fmt.Sprintf("%s: %s -> %s", event.StateChange.Component, event.StateChange.From, event.StateChange.To)
		case event.Retry != nil:
			detail = fmt.Sprintf("attempt %d, delay %s", event.Retry.Attempt, event.Retry.Delay)
		case event.Queue != nil:
			detail = fmt.Sprintf("%s %s", event.Queue.OperationID, event.Queue.Status)
		case event.Error != nil:
			detail = fmt.Sprintf("%s: %s", event.Error.Op, event.Error.Message)
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Category.String(),
			event.Transport,
			event.Endpoint,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
