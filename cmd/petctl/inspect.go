package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/data"
	"github.com/petward/server/internal/discovery"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect-region <file>",
	Short: "Decode one region container and list the owned companions in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

type inspectView struct {
	Path      string         `json:"path"`
	RegionX   int            `json:"region_x"`
	RegionZ   int            `json:"region_z"`
	Allocated int            `json:"allocated"`
	Decoded   int            `json:"decoded"`
	Failed    int            `json:"failed"`
	External  int            `json:"external"`
	Entities  int            `json:"entities"`
	Owned     []ownedView    `json:"owned"`
	Owners    map[string]int `json:"owners"`
	Failure   string         `json:"last_failure,omitempty"`
}

type ownedView struct {
	ChunkX int    `json:"chunk_x"`
	ChunkZ int    `json:"chunk_z"`
	ID     string `json:"id"`
	Type   string `json:"type"`
	Owner  string `json:"owner"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	catalog, err := data.LoadCompanionTypes(typesFile)
	if err != nil {
		return err
	}
	in, err := discovery.Inspect(args[0], &companion.Extractor{Catalog: catalog})
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}

	v := inspectView{
		Path:      in.Path,
		RegionX:   in.Coord.X,
		RegionZ:   in.Coord.Z,
		Allocated: in.Stats.Allocated,
		Decoded:   in.Stats.Decoded,
		Failed:    in.Stats.Failed,
		External:  in.Stats.External,
		Entities:  in.Entities,
		Owners:    make(map[string]int),
		Failure:   in.Stats.LastFailure,
	}
	for _, o := range in.Owned {
		v.Owned = append(v.Owned, ownedView{
			ChunkX: o.Chunk.X,
			ChunkZ: o.Chunk.Z,
			ID:     o.ID.String(),
			Type:   o.Type,
			Owner:  o.Owner.String(),
		})
	}
	for owner, n := range in.Owners() {
		v.Owners[owner.String()] = n
	}

	out := cmd.OutOrStdout()
	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(out, v)
	}

	printTable(out, []string{"Field", "Value"}, [][]string{
		{"Region", fmt.Sprintf("%d, %d", v.RegionX, v.RegionZ)},
		{"Chunks", fmt.Sprintf("%d allocated, %d decoded, %d failed, %d external", v.Allocated, v.Decoded, v.Failed, v.External)},
		{"Entities", strconv.Itoa(v.Entities)},
		{"Owned", strconv.Itoa(len(v.Owned))},
	})
	if v.Failure != "" {
		fmt.Fprintln(out, "last failure:", v.Failure)
	}
	if len(v.Owned) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(v.Owned))
	for _, o := range v.Owned {
		rows = append(rows, []string{fmt.Sprintf("%d, %d", o.ChunkX, o.ChunkZ), o.ID, o.Type, o.Owner})
	}
	printTable(out, []string{"Chunk", "Entity", "Type", "Owner"}, rows)
	return nil
}
