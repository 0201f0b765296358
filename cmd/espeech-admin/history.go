package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/espeech/espeech-api/internal/bootstrap"
	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
)

type historyOptions struct {
	Limit int
	JSON  bool
}

func runHistory(cmdCtx *commandContext, args []string) error {
	opts, err := parseHistoryFlags(args)
	if err != nil {
		return err
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	repo := data.NewHistoryRepo(db, &data.RealTimeProvider{})
	records, err := repo.List(cmdCtx.Ctx, opts.Limit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	return writeHistory(cmdCtx.Out, records, opts.JSON)
}

func writeHistory(w io.Writer, records []*model.HistoryRecord, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []*model.HistoryRecord{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		return writeln(w, "No finished jobs recorded")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "JOB\tVOICE\tSTATUS\tFORMAT\tDURATION\tCOMPLETED\tDETAIL"); err != nil {
		return err
	}
	for _, rec := range records {
		detail := rec.Filename
		if rec.Status == model.JobStatusError {
			detail = rec.Error
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.JobID, rec.VoiceID, rec.Status, rec.Format,
			(time.Duration(rec.DurationMs) * time.Millisecond).String(),
			rec.CompletedAt.UTC().Format(time.RFC3339), detail,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseHistoryFlags(args []string) (historyOptions, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := historyOptions{}
	fs.IntVar(&opts.Limit, "limit", 20, "Number of most recent jobs to show (max 1000)")
	fs.BoolVar(&opts.JSON, "json", false, "Print records as JSON")

	if err := fs.Parse(args); err != nil {
		return historyOptions{}, err
	}
	if opts.Limit <= 0 || opts.Limit > 1000 {
		return historyOptions{}, errors.New("--limit must be between 1 and 1000")
	}
	return opts, nil
}
