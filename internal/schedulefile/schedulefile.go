// Package schedulefile reads the restaurant schedule from a YAML file and
// watches it for edits.
//
// The file holds a single schedule:
//
//	name: Cantina
//	url: https://example.com/cantina
//	closed_indicator: "Fechado no momento"
//	check_interval_minutes: 15
//	operating_days: [1, 2, 3, 4, 5, 6]
//	open_time: "11:00"
//	close_time: "22:00"
//	timezone: America/Sao_Paulo
package schedulefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"hourswatch/internal/storage"
)

const defaultCheckIntervalMinutes = 15

// Load reads and validates the schedule at path.
func Load(path string) (storage.ResourceSchedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return storage.ResourceSchedule{}, fmt.Errorf("read schedule file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a schedule document. Unknown keys are rejected.
func Parse(raw []byte) (storage.ResourceSchedule, error) {
	var schedule storage.ResourceSchedule
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&schedule); err != nil {
		if errors.Is(err, io.EOF) {
			return storage.ResourceSchedule{}, errors.New("schedule file is empty")
		}
		return storage.ResourceSchedule{}, fmt.Errorf("parse schedule file: %w", err)
	}

	if schedule.CheckIntervalMinutes <= 0 {
		schedule.CheckIntervalMinutes = defaultCheckIntervalMinutes
	}
	if schedule.OperatingDays == nil {
		schedule.OperatingDays = []int{0, 1, 2, 3, 4, 5, 6}
	}
	if err := schedule.Validate(); err != nil {
		return storage.ResourceSchedule{}, err
	}
	return schedule, nil
}

// Marshal renders a schedule in the file format.
func Marshal(schedule storage.ResourceSchedule) ([]byte, error) {
	return yaml.Marshal(schedule)
}

// Watch calls onChange with the reloaded schedule each time the file is written
// or replaced. It runs until ctx is cancelled. A reload that fails validation is
// logged and the previous schedule stays active.
func Watch(ctx context.Context, path string, logger zerolog.Logger, onChange func(storage.ResourceSchedule)) error {
	logger = logger.With().Str("component", "schedule_watch").Str("path", path).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// editors save by rename, so watch the directory and filter by name
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info().Msg("watching schedule file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			schedule, err := Load(abs)
			if err != nil {
				logger.Error().Err(err).Msg("schedule reload failed, keeping previous schedule")
				continue
			}
			logger.Info().Str("open", schedule.OpenTime).Str("close", schedule.CloseTime).Msg("schedule reloaded")
			onChange(schedule)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("schedule watcher error")
		}
	}
}
