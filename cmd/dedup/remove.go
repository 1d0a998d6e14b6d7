package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/watermarkset/pkg/checkpointer"
	"github.com/ava-labs/watermarkset/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := context.Background()
	sugar, err := utils.NewSugaredLogger(true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	stream := c.String("stream")
	if stream == "" {
		return errors.New("stream is required")
	}

	levelDBCfg, err := checkpointer.LoadLevelDBConfig()
	if err != nil {
		return err
	}
	store, err := checkpointer.NewLevelDB(levelDBCfg)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()

	if err := store.Delete(ctx, stream); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	sugar.Infof("checkpoint successfully removed for stream %q", stream)
	return nil
}
