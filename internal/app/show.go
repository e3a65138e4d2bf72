package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"hourswatch/internal/calendar"
	"hourswatch/internal/service"
	"hourswatch/internal/storage"
)

// Show prints recent samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	query := service.NewQuery(store, a.Config.API.DefaultSampleLimit, a.Logger)
	samples, err := query.GetRecentSamples(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return writeSamplesTable(os.Stdout, samples)
}

func writeSamplesTable(w io.Writer, samples []storage.Sample) error {
	if len(samples) == 0 {
		fmt.Fprintln(w, "no status checks found")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTime (UTC)\tStatus\tLatency(ms)\tError")

	for _, sample := range samples {
		status := "closed"
		if sample.IsOpen {
			status = "open"
		}
		latency := "-"
		if sample.ResponseTimeMS != nil {
			latency = fmt.Sprintf("%d", *sample.ResponseTimeMS)
		}
		errMsg := ""
		if sample.ErrorMessage != nil {
			errMsg = sanitizeInline(*sample.ErrorMessage)
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n",
			sample.ID,
			sample.Timestamp.UTC().Format(time.RFC3339),
			status,
			latency,
			errMsg,
		)
	}

	return writer.Flush()
}

// Events prints the stored events of one day.
func (a *App) Events(ctx context.Context, date string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	query := service.NewQuery(store, a.Config.API.DefaultSampleLimit, a.Logger)
	events, err := query.GetEventsForDate(ctx, date)
	if err != nil {
		return err
	}
	return writeEventsTable(os.Stdout, events)
}

func writeEventsTable(w io.Writer, events []storage.DailyEvent) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tEvent\tExpected\tOpened\tClosed\tChecks(open/total)\tUpdated")
	for _, ev := range events {
		fmt.Fprintf(writer, "%s\t%s\t%s-%s\t%s\t%s\t%d/%d\t%s\n",
			ev.Date,
			ev.EventType,
			ev.ExpectedOpenTime,
			ev.ExpectedCloseTime,
			valueOrDash(ev.ActualOpenTime),
			valueOrDash(ev.ActualCloseTime),
			ev.Details.OpenChecks,
			ev.Details.TotalChecks,
			ev.Details.LastUpdated,
		)
	}
	return writer.Flush()
}

// Calendar prints the dense calendar for a date range with an availability summary.
func (a *App) Calendar(ctx context.Context, opts CalendarOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	query := service.NewQuery(store, a.Config.API.DefaultSampleLimit, a.Logger)
	data, err := query.GetCalendarData(ctx, opts.From, opts.To)
	if err != nil {
		return err
	}
	return writeCalendarTable(os.Stdout, data)
}

func writeCalendarTable(w io.Writer, data service.CalendarData) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Date (%s)\tWeekday\tStatus\tEvents\n", data.Timezone)
	for _, day := range data.Calendar {
		weekday := ""
		if d, err := storage.ParseDate(day.Date); err == nil {
			weekday = d.Weekday().String()[:3]
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\n", day.Date, weekday, day.Status, len(day.Events))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	stats := calendar.Summary(data.Calendar)
	fmt.Fprintf(w, "\n%d days, %d classified, fully open %s%%\n", stats.Days, stats.RankedDays, stats.Availability.StringFixed(1))
	for _, status := range []storage.EventType{
		storage.EventNeverOpened,
		storage.EventClosedEarly,
		storage.EventOpenedLate,
		storage.EventFullyOpen,
		storage.StatusNotOperatingDay,
	} {
		if n := stats.Counts[status]; n > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", status, n)
		}
	}
	return nil
}

func valueOrDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
