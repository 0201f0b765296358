package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/espeech/espeech-api/internal/adapters/voices"
)

type voicesOptions struct {
	Dir  string
	JSON bool
}

func runVoices(cmdCtx *commandContext, args []string) error {
	opts, err := parseVoicesFlags(args, cmdCtx.Config.Voices.Dir)
	if err != nil {
		return err
	}

	catalog := voices.NewCatalog(voices.CatalogOptions{Dir: opts.Dir, Logger: cmdCtx.Logger})
	list, err := catalog.List(cmdCtx.Ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}

	if opts.JSON {
		enc := json.NewEncoder(cmdCtx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		return writef(cmdCtx.Out, "No voices found in %s\n", opts.Dir)
	}

	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tNAME\tREFERENCE AUDIO\tREFERENCE TEXT"); err != nil {
		return err
	}
	for _, v := range list {
		if err := writef(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.RefAudioFile, v.RefTextFile); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseVoicesFlags(args []string, defaultDir string) (voicesOptions, error) {
	fs := flag.NewFlagSet("voices", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts voicesOptions
	fs.StringVar(&opts.Dir, "dir", defaultDir, "Voice catalog directory")
	fs.BoolVar(&opts.JSON, "json", false, "Print the catalog as JSON")

	if err := fs.Parse(args); err != nil {
		return voicesOptions{}, err
	}
	return opts, nil
}
