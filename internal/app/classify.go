package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"hourswatch/internal/classifier"
	"hourswatch/internal/storage"
)

type classifyRow struct {
	date    string
	result  classifier.Result
	written bool
}

// Classify re-runs daily classification over a date range. Past days are judged
// as of their declared closing time, which is the last in-hours verdict the live
// monitor would have written; today is judged as of now.
func (a *App) Classify(ctx context.Context, opts ClassifyOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	schedule, err := store.GetResourceSchedule(ctx)
	if err != nil {
		return fmt.Errorf("load restaurant config: %w", err)
	}
	loc, err := schedule.Location()
	if err != nil {
		return err
	}

	now := time.Now()
	today := now.In(loc).Format(storage.DateLayout)
	from, to := opts.From, opts.To
	if from == "" {
		from = today
	}
	if to == "" {
		to = from
	}
	start, err := storage.ParseDate(from)
	if err != nil {
		return err
	}
	end, err := storage.ParseDate(to)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return errors.New("分类范围为空，请检查 --from/--to")
	}

	if opts.DryRun {
		a.Logger.Warn().Msg("classify dry-run：不会写入数据库")
	}

	c := a.newClassifier(store)
	var rows []classifyRow
	failed := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		date := d.Format(storage.DateLayout)
		if date > today {
			break
		}
		at := now
		if date < today {
			at, err = time.ParseInLocation(storage.DateLayout+" "+storage.ClockLayout, date+" "+schedule.CloseTime, loc)
			if err != nil {
				return err
			}
		}

		row, err := a.classifyDay(ctx, store, c, schedule, loc, date, at, opts.DryRun)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("date", date).Msg("分类失败")
			continue
		}
		rows = append(rows, row)
	}

	if err := writeClassifyTable(os.Stdout, rows); err != nil {
		return err
	}
	a.Logger.Info().Int("processed", len(rows)).Int("failed", failed).Msg("分类完成")
	if failed > 0 {
		return errors.New("部分日期分类失败，请检查日志")
	}
	return nil
}

func (a *App) classifyDay(ctx context.Context, store storage.Backend, c *classifier.Classifier, schedule storage.ResourceSchedule, loc *time.Location, date string, at time.Time, dryRun bool) (classifyRow, error) {
	samples, err := store.ListSamplesForDate(ctx, date, loc)
	if err != nil {
		return classifyRow{}, err
	}
	res, err := classifier.Classify(schedule, samples, at)
	if err != nil {
		return classifyRow{}, err
	}
	row := classifyRow{date: date, result: res}
	if dryRun {
		return row, nil
	}

	event, err := c.AnalyzeAt(ctx, schedule, at)
	if err != nil {
		return classifyRow{}, err
	}
	row.written = event != nil
	return row, nil
}

func writeClassifyTable(w io.Writer, rows []classifyRow) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tEvent\tOpened\tClosed\tChecks(open/total)\tWritten")
	for _, row := range rows {
		event := string(row.result.EventType)
		if event == "" {
			event = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d/%d\t%t\n",
			row.date,
			event,
			valueOrDash(row.result.ActualOpen),
			valueOrDash(row.result.ActualClose),
			row.result.Open,
			row.result.Total,
			row.written,
		)
	}
	return writer.Flush()
}
