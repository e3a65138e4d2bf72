package app

import (
	"context"
	"fmt"
	"os"

	"hourswatch/internal/schedulefile"
)

// ApplySchedule loads a YAML schedule file and stores it as the active restaurant config.
func (a *App) ApplySchedule(ctx context.Context, path string) error {
	schedule, err := schedulefile.Load(path)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SaveResourceSchedule(ctx, schedule); err != nil {
		return err
	}
	a.Logger.Info().Str("path", path).Str("name", schedule.Name).Str("url", schedule.URL).Msg("restaurant config saved")
	return nil
}

// ShowSchedule prints the active restaurant config as YAML.
func (a *App) ShowSchedule(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	schedule, err := store.GetResourceSchedule(ctx)
	if err != nil {
		return fmt.Errorf("load restaurant config: %w", err)
	}
	raw, err := schedulefile.Marshal(schedule)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(raw)
	return err
}
