package discovery

import (
	"os"
	"path/filepath"
	"strings"
)

// Partition keys of the three built-in dimensions.
const (
	Overworld = "minecraft:overworld"
	Nether    = "minecraft:the_nether"
	End       = "minecraft:the_end"
)

// Partition is one world dimension and the directories its containers live in.
type Partition struct {
	Key  string
	Dirs []string
}

// containerDirs are scanned under every base directory. Entity containers
// hold companions in current saves; region containers in older ones.
var containerDirs = []string{"entities", "region"}

// baseDirs returns the dimension roots that may hold containers for key,
// newest layout first.
func baseDirs(worldDir, key string) []string {
	key = NormalizeKey(key)
	switch key {
	case Overworld:
		return []string{worldDir}
	case Nether:
		return []string{
			filepath.Join(worldDir, "dimensions", "minecraft", "the_nether"),
			filepath.Join(worldDir, "DIM-1"),
		}
	case End:
		return []string{
			filepath.Join(worldDir, "dimensions", "minecraft", "the_end"),
			filepath.Join(worldDir, "DIM1"),
		}
	}
	ns, path, _ := strings.Cut(key, ":")
	if ns == "" || path == "" || strings.Contains(ns, "..") || strings.Contains(path, "..") {
		return nil
	}
	return []string{filepath.Join(worldDir, "dimensions", ns, filepath.FromSlash(path))}
}

// NormalizeKey adds the default namespace to a bare key, so "the_nether"
// resolves like "minecraft:the_nether".
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key != "" && !strings.Contains(key, ":") {
		key = "minecraft:" + key
	}
	return key
}

// CandidateDirs lists every directory that could hold containers for key,
// whether or not it exists.
func CandidateDirs(worldDir, key string) []string {
	var out []string
	for _, base := range baseDirs(worldDir, key) {
		for _, sub := range containerDirs {
			out = append(out, filepath.Join(base, sub))
		}
	}
	return out
}

// Resolve builds a Partition for every key, keeping only directories that
// exist. Partitions with no directory are still returned so callers can
// report them.
func Resolve(worldDir string, keys []string) []Partition {
	out := make([]Partition, 0, len(keys))
	for _, key := range keys {
		p := Partition{Key: NormalizeKey(key)}
		for _, dir := range CandidateDirs(worldDir, key) {
			if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
				p.Dirs = append(p.Dirs, dir)
			}
		}
		out = append(out, p)
	}
	return out
}

// Discover lists the partition keys present in a world directory: the three
// built-ins plus any custom dimensions under dimensions/<ns>/<path>.
func Discover(worldDir string) []string {
	keys := []string{Overworld, Nether, End}
	seen := map[string]bool{Overworld: true, Nether: true, End: true}

	root := filepath.Join(worldDir, "dimensions")
	nss, err := os.ReadDir(root)
	if err != nil {
		return keys
	}
	for _, ns := range nss {
		if !ns.IsDir() {
			continue
		}
		_ = filepath.WalkDir(filepath.Join(root, ns.Name()), func(p string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			name := d.Name()
			if name != "entities" && name != "region" {
				return nil
			}
			rel, err := filepath.Rel(filepath.Join(root, ns.Name()), filepath.Dir(p))
			if err != nil || rel == "." {
				return filepath.SkipDir
			}
			key := ns.Name() + ":" + filepath.ToSlash(rel)
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
			return filepath.SkipDir
		})
	}
	return keys
}
