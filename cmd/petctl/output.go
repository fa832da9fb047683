package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/petward/server/internal/companion"
)

func printOutput(w io.Writer, v any) error {
	switch outputFmt {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so both formats share the json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var m any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return enc.Encode(m)
	default:
		return fmt.Errorf("unsupported output format for structured data: %s (use json or yaml)", outputFmt)
	}
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(tw, strings.Join(upper, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// petView is the structured form of one snapshot.
type petView struct {
	ID        string  `json:"id"`
	Bucket    string  `json:"bucket"`
	Type      string  `json:"type"`
	Name      string  `json:"name,omitempty"`
	Dimension string  `json:"dimension"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	ChunkX    int     `json:"chunk_x"`
	ChunkZ    int     `json:"chunk_z"`
	Leashed   bool    `json:"leashed,omitempty"`
	InVehicle bool    `json:"in_vehicle,omitempty"`
	Home      []int   `json:"home,omitempty"`
}

func viewOf(bucket string, s companion.Snapshot) petView {
	v := petView{
		ID:        s.ID.String(),
		Bucket:    bucket,
		Type:      s.Type,
		Name:      s.Name,
		Dimension: s.Partition,
		X:         s.Pos.X,
		Y:         s.Pos.Y,
		Z:         s.Pos.Z,
		ChunkX:    s.Chunk.X,
		ChunkZ:    s.Chunk.Z,
		Leashed:   s.Leashed,
		InVehicle: s.InVehicle,
	}
	if s.Home != nil {
		v.Home = []int{s.Home.X, s.Home.Y, s.Home.Z}
	}
	return v
}

func bucketViews(c companion.Categorized) []petView {
	var out []petView
	for _, b := range []struct {
		name  string
		snaps []companion.Snapshot
	}{
		{"standing", c.Standing},
		{"sitting", c.Sitting},
		{"roaming", c.Roaming},
		{"independent", c.Independent},
	} {
		for _, s := range b.snaps {
			out = append(out, viewOf(b.name, s))
		}
	}
	return out
}
