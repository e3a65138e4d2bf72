package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"hourswatch/internal/storage"
)

const (
	barWidth   = 24
	barSpacing = 8
)

// dayShare is the fraction of status checks that saw the page open on one local day.
type dayShare struct {
	Date  string
	Total int
	Open  int
	Share decimal.Decimal
}

// Export writes status checks as CSV and/or a PNG of the daily open share.
// Days and wall-clock columns follow the restaurant's timezone.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	loc := time.UTC
	if schedule, err := store.GetResourceSchedule(ctx); err == nil {
		if l, err := schedule.Location(); err == nil {
			loc = l
		}
	} else if !errors.Is(err, storage.ErrScheduleNotFound) {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.AddDate(0, 0, -7)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no status checks found for export window")
		return nil
	}

	if opts.CSVPath != "" {
		rows := downsampleSamples(samples, opts.MaxPoints)
		if err := writeSamplesCSV(opts.CSVPath, rows, loc); err != nil {
			return err
		}
		a.Logger.Info().Int("total", len(samples)).Int("exported", len(rows)).Str("path", opts.CSVPath).Msg("status checks exported")
	}

	if opts.PNGPath != "" {
		days := dailyShares(samples, loc)
		if err := writeSharePNG(opts.PNGPath, days, loc); err != nil {
			return err
		}
		a.Logger.Info().Int("days", len(days)).Str("path", opts.PNGPath).Msg("daily open share chart written")
	}

	return nil
}

// downsampleSamples picks max evenly spaced samples, keeping the first and last.
func downsampleSamples(samples []storage.Sample, max int) []storage.Sample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.Sample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := min(int(math.Round(step*float64(i))), len(samples)-1)
		result = append(result, samples[idx])
	}
	return result
}

// dailyShares groups samples by local day in ascending order.
func dailyShares(samples []storage.Sample, loc *time.Location) []dayShare {
	var days []dayShare
	index := make(map[string]int)
	for _, s := range samples {
		date := s.Timestamp.In(loc).Format(storage.DateLayout)
		i, ok := index[date]
		if !ok {
			i = len(days)
			index[date] = i
			days = append(days, dayShare{Date: date})
		}
		days[i].Total++
		if s.IsOpen {
			days[i].Open++
		}
	}

	hundred := decimal.NewFromInt(100)
	for i := range days {
		days[i].Share = decimal.NewFromInt(int64(days[i].Open)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(days[i].Total))).
			Round(1)
	}
	return days
}

func writeSamplesCSV(path string, samples []storage.Sample, loc *time.Location) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"id", "timestamp_utc", "local_date", "local_time", "is_open", "response_time_ms", "error_message"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		local := sample.Timestamp.In(loc)
		latency := ""
		if sample.ResponseTimeMS != nil {
			latency = strconv.FormatInt(*sample.ResponseTimeMS, 10)
		}
		errMsg := ""
		if sample.ErrorMessage != nil {
			errMsg = sanitizeInline(*sample.ErrorMessage)
		}
		record := []string{
			strconv.FormatInt(sample.ID, 10),
			sample.Timestamp.UTC().Format(time.RFC3339),
			local.Format(storage.DateLayout),
			local.Format(storage.ClockLayout),
			strconv.FormatBool(sample.IsOpen),
			latency,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSharePNG(path string, days []dayShare, loc *time.Location) error {
	if len(days) == 0 {
		return errors.New("no days to draw")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(days))
	for _, d := range days {
		label := d.Date
		if t, err := storage.ParseDate(d.Date); err == nil {
			label = t.Format("01-02 Mon")
		}
		bars = append(bars, chart.Value{Label: label, Value: d.Share.InexactFloat64()})
	}

	graph := chart.BarChart{
		Title:      "Open share per day (" + loc.String() + ")",
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Width:      max(640, 120+len(bars)*(barWidth+barSpacing)),
		Height:     480,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis: chart.YAxis{
			Name:  "% of checks open",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
