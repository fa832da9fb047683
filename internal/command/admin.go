package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/discovery"
	"github.com/petward/server/internal/region"
)

const storeTimeout = 3 * time.Second

func petAdmin(s Sender, args []string, deps *Deps) Result {
	if !s.Admin() {
		return fail("You do not have permission to use this command.")
	}
	if len(args) == 0 {
		return fail("Usage: petadmin cleanup | tickets | reset <player> | version | inspect-region <dimension> <rx> <rz>")
	}

	switch strings.ToLower(args[0]) {
	case "cleanup":
		n := deps.Leases.Cleanup()
		deps.Log.Info("管理員清除回收票證", zap.String("by", s.Name()), zap.Int("released", n))
		return ok(deps.Printer.Sprintf("Released %d recovery ticket(s).", n))
	case "tickets":
		return adminTickets(deps)
	case "reset":
		return adminReset(s, args[1:], deps)
	case "version":
		return adminVersion(deps)
	case "inspect-region":
		return adminInspect(s, args[1:], deps)
	default:
		return fail(fmt.Sprintf("Unknown petadmin subcommand: %s", args[0]))
	}
}

func adminTickets(deps *Deps) Result {
	tickets := deps.Leases.Tickets()
	lines := []string{deps.Printer.Sprintf("Active tickets: %d", len(tickets))}
	for i, t := range tickets {
		if i == maxListed*4 {
			lines = append(lines, deps.Printer.Sprintf("  ... and %d more", len(tickets)-i))
			break
		}
		ttl := "-"
		if t.TTL > 0 {
			ttl = strconv.Itoa(t.TTL)
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s r=%d ttl=%s pet=%s",
			t.Kind, t.Partition, t.Chunk, t.Radius, ttl, t.Companion))
	}
	return ok(lines...)
}

func adminReset(s Sender, args []string, deps *Deps) Result {
	if len(args) == 0 {
		return fail("Usage: petadmin reset <player>")
	}
	owner, name, found := resolveOwner(args[0], deps)
	if !found {
		return fail(fmt.Sprintf("Unknown player: %s (offline players need a UUID)", args[0]))
	}
	n := deps.Leases.Reset(owner)
	if deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := deps.Store.Delete(ctx, owner); err != nil {
			deps.Log.Error("刪除租約紀錄失敗", zap.String("owner", owner.String()), zap.Error(err))
			return fail("Leases were reset in memory but the saved record could not be deleted.")
		}
	}
	deps.Log.Info("管理員重設寵物資料",
		zap.String("by", s.Name()),
		zap.String("owner", owner.String()),
		zap.Int("tickets", n))
	return ok(deps.Printer.Sprintf("Reset pet data for %s (%d ticket(s) released).", name, n))
}

func adminVersion(deps *Deps) Result {
	uptime := time.Duration(0)
	if deps.Config.Server.StartTime > 0 {
		uptime = time.Since(time.Unix(deps.Config.Server.StartTime, 0)).Truncate(time.Second)
	}
	pr := deps.Printer
	return ok(
		fmt.Sprintf("%s %s", deps.Config.Server.Name, deps.Version),
		fmt.Sprintf("Uptime: %s", uptime),
		pr.Sprintf("Players: %d  Pets loaded: %d", deps.World.PlayerCount(), deps.World.PetCount()),
		pr.Sprintf("Owners with leases: %d  Scans running: %d", len(deps.Leases.Owners()), deps.Scans.InFlight()),
		pr.Sprintf("Whitelist owners: %d", deps.Whitelist.Owners()),
	)
}

func adminInspect(s Sender, args []string, deps *Deps) Result {
	if len(args) < 3 {
		return fail("Usage: petadmin inspect-region <dimension> <rx> <rz>")
	}
	rx, errX := strconv.Atoi(args[1])
	rz, errZ := strconv.Atoi(args[2])
	if errX != nil || errZ != nil {
		return fail("Region coordinates must be integers.")
	}

	name := region.FileName(region.Coord{X: rx, Z: rz})
	var path string
	for _, dir := range discovery.CandidateDirs(deps.Config.World.Dir, args[0]) {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return fail(fmt.Sprintf("No %s found for %s.", name, args[0]))
	}

	// Decoding a whole container is too slow for the tick thread.
	go func() {
		in, err := inspectSafe(path, deps.Extractor)
		deps.Queue.Post(func() {
			if err != nil {
				deps.Log.Warn("檢查區域檔失敗", zap.String("file", path), zap.Error(err))
				s.Send(fmt.Sprintf("Could not read %s: %v", name, err))
				return
			}
			for _, line := range InspectLines(deps, in) {
				s.Send(line)
			}
		})
	}()
	return ok(fmt.Sprintf("Inspecting %s...", name))
}

func inspectSafe(path string, ex *companion.Extractor) (in discovery.Inspection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inspect panic: %v", r)
		}
	}()
	return discovery.Inspect(path, ex)
}

// InspectLines renders a container inspection.
func InspectLines(deps *Deps, in discovery.Inspection) []string {
	pr := deps.Printer
	st := in.Stats
	lines := []string{
		in.Path,
		pr.Sprintf("Chunks: %d allocated, %d decoded, %d failed, %d external", st.Allocated, st.Decoded, st.Failed, st.External),
		pr.Sprintf("Entities: %d  Owned pets: %d", in.Entities, len(in.Owned)),
	}
	if st.LastFailure != "" {
		lines = append(lines, "Last failure: "+st.LastFailure)
	}
	counts := in.Owners()
	owners := make([]uuid.UUID, 0, len(counts))
	for id := range counts {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool {
		if counts[owners[i]] != counts[owners[j]] {
			return counts[owners[i]] > counts[owners[j]]
		}
		return owners[i].String() < owners[j].String()
	})
	for _, owner := range owners {
		name := owner.String()
		if p := deps.World.GetPlayer(owner); p != nil {
			name = p.Username
		}
		lines = append(lines, pr.Sprintf("  %s: %d", name, counts[owner]))
	}
	return lines
}
