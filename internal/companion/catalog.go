package companion

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Default lists, used when the companion-type table leaves a list empty.
var (
	DefaultRoaming = []string{"horse", "donkey", "mule", "llama", "trader_llama", "camel", "skeleton_horse", "zombie_horse"}

	// Owned projectiles and thrown items carry an Owner tag too.
	DefaultExcluded = []string{
		"arrow", "trident", "fireball", "snowball", "egg", "ender_pearl",
		"potion", "experience_bottle", "llama_spit", "firework_rocket",
		"fishing_bobber", "shulker_bullet", "wither_skull", "wind_charge",
		"minecraft:item",
	}

	DefaultMarkers = []string{"Sitting", "Tame", "CollarColor", "Variant", "variant", "InLove"}
)

// Catalog classifies companion type tags. Read-only after construction, so
// it is safe to share between the tick loop and scan workers.
type Catalog struct {
	roaming  mapset.Set[string]
	excluded []string
	markers  []string
}

// NewCatalog builds a catalog; empty lists fall back to the defaults.
func NewCatalog(roaming, excluded, markers []string) *Catalog {
	if len(roaming) == 0 {
		roaming = DefaultRoaming
	}
	if len(excluded) == 0 {
		excluded = DefaultExcluded
	}
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	set := mapset.NewThreadUnsafeSet[string]()
	for _, r := range roaming {
		set.Add(strings.ToLower(strings.TrimSpace(r)))
	}
	ex := make([]string, 0, len(excluded))
	for _, e := range excluded {
		// An empty entry would match every tag.
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			ex = append(ex, e)
		}
	}
	return &Catalog{roaming: set, excluded: ex, markers: markers}
}

var defaultCatalog = DefaultCatalog()

func DefaultCatalog() *Catalog { return NewCatalog(nil, nil, nil) }

// IsRoaming matches the full tag or its path ("minecraft:horse" or "horse").
func (c *Catalog) IsRoaming(tag string) bool {
	tag = strings.ToLower(tag)
	return c.roaming.Contains(tag) || c.roaming.Contains(TypePath(tag))
}

// IsExcluded matches by substring.
func (c *Catalog) IsExcluded(tag string) bool {
	tag = strings.ToLower(tag)
	for _, ex := range c.excluded {
		if strings.Contains(tag, ex) {
			return true
		}
	}
	return false
}

func (c *Catalog) Markers() []string { return c.markers }

func (c *Catalog) RoamingTypes() []string { return c.roaming.ToSlice() }
