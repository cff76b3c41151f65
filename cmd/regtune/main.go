// Command regtune trains a regression model on a CSV dataset, optionally
// tuning its hyperparameters and caching the winners for later runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/thalesfsp/regtune/config"
	"github.com/thalesfsp/regtune/dataset"
	"github.com/thalesfsp/regtune/internal/logging"
	"github.com/thalesfsp/regtune/paramstore"
	"github.com/thalesfsp/regtune/pipeline"
	"github.com/thalesfsp/regtune/tuner"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML configuration file")
		envFile    = flag.String("env", ".env", "dotenv file, ignored when missing")
		dataPath   = flag.String("data", "", "CSV dataset, overrides data.path")
		modelName  = flag.String("model", "", "model family, overrides model.model_name")
		fineTuning = flag.Bool("fine-tuning", false, "tune hyperparameters before the final fit")
		trials     = flag.Int("trials", 0, "trial budget, overrides model.trial_budget")
		noCache    = flag.Bool("no-cache", false, "ignore cached hyperparameters")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags win over file and environment, but only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Path = *dataPath
		case "model":
			cfg.Model.Name = *modelName
		case "fine-tuning":
			cfg.Model.FineTuning = *fineTuning
		case "trials":
			cfg.Model.TrialBudget = *trials
		case "no-cache":
			cfg.Model.UseCachedParams = !*noCache
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Training failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if cfg.Data.Path == "" {
		return errors.New("no dataset: set data.path, REGTUNE_DATA_PATH or -data")
	}

	frame, err := dataset.LoadFile(cfg.Data.Path, dataset.Options{
		Delimiter:   []rune(cfg.Data.Delimiter)[0],
		Target:      cfg.Data.Target,
		Drop:        cfg.Data.DropColumns,
		FillMissing: cfg.Data.FillMissing,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"rows":            len(frame.Y),
		"features":        len(frame.Columns),
		"dropped_columns": frame.Stats.DroppedColumns,
		"incomplete":      frame.Stats.Incomplete,
		"filled":          frame.Stats.Filled,
		"duplicates":      frame.Stats.Duplicates,
	}).Info("Dataset loaded")

	split, err := dataset.TrainTestSplit(frame, cfg.Data.TestSize, cfg.Data.Seed, cfg.Data.Stratify)
	if err != nil {
		return err
	}

	store, closeStore, err := paramstore.Open(ctx, cfg.Cache)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("Failed to close the cache store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	outcome, err := pipeline.Train(ctx, split, cfg.Model,
		pipeline.WithLogger(logger),
		pipeline.WithTuning(
			tuner.WithStore(store),
			tuner.WithRecorder(tuner.NewRecorder(reg)),
			tuner.WithSearchConfig(pipeline.SearchConfig(cfg.Search)),
		),
	)
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"family": outcome.Family,
		"params": outcome.Params,
		"mse":    outcome.Report.MSE,
		"rmse":   outcome.Report.RMSE,
		"mae":    outcome.Report.MAE,
		"train":  len(split.YTrain),
		"test":   len(split.YTest),
	}

	if math.IsNaN(outcome.Report.R2) {
		logger.Warn("Test target is constant, R2 is undefined")
	} else {
		fields["r2"] = outcome.Report.R2
	}

	logger.WithFields(fields).Info("Evaluation complete")

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	return nil
}
