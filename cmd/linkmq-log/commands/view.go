// Package commands implements the linkmq-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/linkmq/linkmq-go/pkg/log"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// eventType returns the label of the payload carried by event.
func eventType(event log.Event) string {
	switch {
	case event.Data != nil:
		return "Data"
	case event.StateChange != nil:
		return "State"
	case event.Schedule != nil:
		return "Schedule"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timeLayout)
	conn := event.ConnectionID
	if conn == "" {
		conn = "-"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, conn, event.Direction, event.Layer, eventType(event))

	if event.LocalAddr != "" || event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Local: %s  Remote: %s\n", orDash(event.LocalAddr), orDash(event.RemoteAddr))
	}

	switch {
	case event.Data != nil:
		formatDataDetails(w, event.Data)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Schedule != nil:
		formatScheduleDetails(w, event.Schedule)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatDataDetails writes payload details.
func formatDataDetails(w io.Writer, data *log.DataEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", data.Size)
	if len(data.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(data.Data))
		if data.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatScheduleDetails writes reconnect plan details.
func formatScheduleDetails(w io.Writer, sched *log.ScheduleEvent) {
	fmt.Fprintf(w, "  Action: %s\n", sched.Action)
	fmt.Fprintf(w, "  Address: %s\n", sched.Address)
	if !sched.Due.IsZero() {
		fmt.Fprintf(w, "  Due: %s\n", sched.Due.UTC().Format(timeLayout))
	}
	if sched.Interval > 0 {
		fmt.Fprintf(w, "  Interval: %s\n", formatDuration(sched.Interval))
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
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

// RunView prints the events of path matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
