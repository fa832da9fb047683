package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/data"
	"github.com/petward/server/internal/discovery"
)

var (
	scanWorld      string
	scanOwner      string
	scanPartitions []string
	scanTags       bool
	scanQuiet      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Search a world directory for one owner's companions",
	Example: `  petctl scan --world ./world --owner 0f0e0d0c-0b0a-0908-0706-050403020100
  petctl scan --world ./world --owner <uuid> -p minecraft:the_nether -o json`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanWorld, "world", "world", "World directory")
	scanCmd.Flags().StringVar(&scanOwner, "owner", "", "Owner UUID (required)")
	scanCmd.Flags().StringSliceVarP(&scanPartitions, "partition", "p", nil, "Dimension keys to scan (default: every dimension found)")
	scanCmd.Flags().BoolVar(&scanTags, "independence-tags", true, "Read independence state from entity tags")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Suppress progress output")
	_ = scanCmd.MarkFlagRequired("owner")
}

type scanView struct {
	Owner        string    `json:"owner"`
	Partitions   []string  `json:"partitions"`
	Files        int       `json:"files"`
	FilesSkipped int       `json:"files_skipped"`
	FilesFailed  int       `json:"files_failed"`
	Chunks       int       `json:"chunks"`
	ChunksFailed int       `json:"chunks_failed"`
	Elapsed      string    `json:"elapsed"`
	Pets         []petView `json:"pets"`
}

func runScan(cmd *cobra.Command, _ []string) error {
	owner, err := uuid.Parse(scanOwner)
	if err != nil {
		return fmt.Errorf("--owner: %w", err)
	}
	catalog, err := data.LoadCompanionTypes(typesFile)
	if err != nil {
		return err
	}

	keys := scanPartitions
	if len(keys) == 0 {
		keys = discovery.Discover(scanWorld)
	}
	parts := discovery.Resolve(scanWorld, keys)
	dirs := 0
	for _, p := range parts {
		dirs += len(p.Dirs)
	}
	if dirs == 0 {
		return fmt.Errorf("no region directories under %s", scanWorld)
	}

	ex := &companion.Extractor{Catalog: catalog}
	if scanTags {
		ex.Independence = companion.TagIndependence{}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var progress discovery.ProgressFunc
	if !scanQuiet {
		errOut := cmd.ErrOrStderr()
		progress = func(done, total int) {
			fmt.Fprintf(errOut, "\rscanning %d/%d", done, total)
			if done == total {
				fmt.Fprintln(errOut)
			}
		}
	}

	rep, err := discovery.ScanNow(ctx, discovery.NewScanner(ex, nil), owner, parts, catalog, progress)
	if err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "interrupted, showing partial results")
	}

	d := rep.Disk
	v := scanView{
		Owner:        owner.String(),
		Partitions:   rep.Partitions,
		Files:        d.Files,
		FilesSkipped: d.FilesSkipped,
		FilesFailed:  d.FilesFailed,
		Chunks:       d.Chunks,
		ChunksFailed: d.ChunksFailed,
		Elapsed:      d.Elapsed.Round(time.Millisecond).String(),
		Pets:         bucketViews(rep.Categorized),
	}

	out := cmd.OutOrStdout()
	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(out, v)
	}

	fmt.Fprintf(out, "%d files (%d skipped, %d failed), %d chunks (%d failed) in %s\n",
		v.Files, v.FilesSkipped, v.FilesFailed, v.Chunks, v.ChunksFailed, v.Elapsed)
	if len(v.Pets) == 0 {
		fmt.Fprintln(out, "no companions found")
		return nil
	}
	rows := make([][]string, 0, len(v.Pets))
	for _, p := range v.Pets {
		name := p.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{
			p.Bucket, name, p.Type, p.Dimension,
			fmt.Sprintf("%.1f, %.1f, %.1f", p.X, p.Y, p.Z),
			p.ID,
		})
	}
	printTable(out, []string{"Bucket", "Name", "Type", "Dimension", "Position", "ID"}, rows)
	return nil
}
