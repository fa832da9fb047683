package command

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/discovery"
)

// maxListed caps the entries printed per bucket by locate-pets.
const maxListed = 8

func recoverPets(s Sender, deps *Deps) Result {
	p, res, found := player(s, deps)
	if !found {
		return res
	}
	parts := deps.partitions()
	if err := StartRecovery(deps, p.UUID, parts, false); err != nil {
		return scanRejected(err)
	}
	return ok(deps.Printer.Sprintf("Searching %d dimension(s) for your pets...", len(parts)))
}

// StartRecovery scans for owner's companions and, once the report arrives,
// keeps the chunks of every standing companion not already resident loaded
// so the host can bring it back. auto marks the silent first-join run.
func StartRecovery(deps *Deps, owner uuid.UUID, parts []discovery.Partition, auto bool) error {
	req := discovery.Request{
		Owner:      owner,
		Partitions: parts,
		Flush:      deps.Config.Discovery.SaveBeforeScan,
		OnDone: func(rep discovery.Report, err error) {
			finishRecovery(deps, owner, rep, err, auto)
		},
	}
	if !auto {
		req.OnProgress = progressReporter(deps, owner)
	}
	return deps.Scans.Start(req)
}

func finishRecovery(deps *Deps, owner uuid.UUID, rep discovery.Report, err error, auto bool) {
	if err != nil {
		if !auto {
			deps.notify(owner, "Pet search failed. Please tell an administrator.")
		}
		return
	}
	if deps.World.GetPlayer(owner) == nil {
		deps.Log.Info("擁有者已離線，略過寵物回收", zap.String("owner", owner.String()))
		return
	}

	targets := Recoverable(rep)
	n := deps.Leases.GrantRecovery(owner, targets)
	deps.Leases.MarkFirstRecoveryDone(owner)
	deps.Log.Info("寵物回收完成",
		zap.String("owner", owner.String()),
		zap.Int("found", rep.Total()),
		zap.Int("granted", n),
		zap.Bool("auto", auto))

	if auto && n == 0 {
		return
	}
	deps.notify(owner, summaryLine(deps, rep.Categorized))
	if n > 0 {
		deps.notify(owner, deps.Printer.Sprintf("Loading the chunks of %d pet(s) so they can find their way back.", n))
	} else {
		deps.notify(owner, "All of your standing pets are already nearby.")
	}
}

// Recoverable picks the standing companions known only from disk.
// Resident ones are already covered by renewal.
func Recoverable(rep discovery.Report) []companion.Snapshot {
	var out []companion.Snapshot
	for _, s := range rep.Standing {
		if s.Origin == companion.OriginDisk {
			out = append(out, s)
		}
	}
	return out
}

func locatePets(s Sender, deps *Deps) Result {
	p, res, found := player(s, deps)
	if !found {
		return res
	}
	owner := p.UUID
	parts := deps.partitions()
	err := deps.Scans.Start(discovery.Request{
		Owner:      owner,
		Partitions: parts,
		Flush:      deps.Config.Discovery.SaveBeforeScan,
		OnProgress: progressReporter(deps, owner),
		OnDone: func(rep discovery.Report, err error) {
			if err != nil {
				deps.notify(owner, "Pet search failed. Please tell an administrator.")
				return
			}
			for _, line := range LocateLines(deps, rep) {
				deps.notify(owner, line)
			}
		},
	})
	if err != nil {
		return scanRejected(err)
	}
	return ok(deps.Printer.Sprintf("Searching %d dimension(s) for your pets...", len(parts)))
}

// LocateLines renders a report bucket by bucket.
func LocateLines(deps *Deps, rep discovery.Report) []string {
	if rep.Total() == 0 {
		return []string{"No pets found."}
	}
	lines := []string{summaryLine(deps, rep.Categorized)}
	add := func(title string, snaps []companion.Snapshot) {
		if len(snaps) == 0 {
			return
		}
		lines = append(lines, deps.Printer.Sprintf("%s (%d):", title, len(snaps)))
		for i, s := range snaps {
			if i == maxListed {
				lines = append(lines, deps.Printer.Sprintf("  ... and %d more", len(snaps)-maxListed))
				break
			}
			lines = append(lines, describe(s))
		}
	}
	add("Standing", rep.Standing)
	add("Sitting", rep.Sitting)
	add("Roaming", rep.Roaming)
	add("Independent", rep.Independent)
	return lines
}

func describe(s companion.Snapshot) string {
	line := fmt.Sprintf("  %s (%s) at %s in %s", s.DisplayName(), companion.TypePath(s.Type), s.Pos, s.Partition)
	if s.Home != nil {
		line += fmt.Sprintf(", home %d %d %d", s.Home.X, s.Home.Y, s.Home.Z)
	}
	if s.Origin != companion.OriginDisk {
		line += " [loaded]"
	}
	return line
}

func summaryLine(deps *Deps, c companion.Categorized) string {
	return deps.Printer.Sprintf("Found %d pet(s): %d standing, %d sitting, %d roaming, %d independent.",
		c.Total(), len(c.Standing), len(c.Sitting), len(c.Roaming), len(c.Independent))
}

// progressReporter emits a line each time another ProgressStep percent of
// the containers is done. Runs on the tick thread.
func progressReporter(deps *Deps, owner uuid.UUID) discovery.ProgressFunc {
	step := deps.Config.Discovery.ProgressStep
	if step <= 0 {
		step = 25
	}
	next := step
	return func(done, total int) {
		if total <= 0 {
			return
		}
		pct := done * 100 / total
		if pct < next {
			return
		}
		for next <= pct {
			next += step
		}
		deps.notify(owner, deps.Printer.Sprintf("Searching... %d%% (%d/%d region files)", pct, done, total))
	}
}

func scanRejected(err error) Result {
	if errors.Is(err, discovery.ErrAlreadyScanning) {
		return fail("A pet search is already running. Please wait for it to finish.")
	}
	return fail("Could not start the pet search.")
}

func glowPets(s Sender, deps *Deps) Result {
	p, res, found := player(s, deps)
	if !found {
		return res
	}
	pets := deps.World.PetsOf(p.UUID)
	if len(pets) == 0 {
		return ok("None of your pets are loaded right now.")
	}
	ticks := deps.Config.Ticks(deps.Config.Discovery.GlowDuration)
	for _, pet := range pets {
		pet.GlowTicks = ticks
	}
	return ok(deps.Printer.Sprintf("%d pet(s) will glow for %d seconds.",
		len(pets), int(deps.Config.Discovery.GlowDuration.Seconds())))
}

func petStats(s Sender, args []string, deps *Deps) Result {
	owner, name := s.ID(), s.Name()
	if len(args) > 0 {
		id, n, found := resolveOwner(args[0], deps)
		if !found {
			return fail(fmt.Sprintf("Unknown player: %s", args[0]))
		}
		if id != s.ID() && !s.Admin() {
			return fail("Only administrators can view another player's stats.")
		}
		owner, name = id, n
	} else if deps.World.GetPlayer(owner) == nil {
		return fail("Usage: pet-stats <player>")
	}

	var live []companion.Snapshot
	for _, c := range deps.World.CompanionsOf(owner) {
		live = append(live, companion.FromLive(c, deps.Independence))
	}
	cat := companion.Categorize(live, deps.Catalog)
	pr := deps.Printer

	lines := []string{
		fmt.Sprintf("=== Pet stats: %s ===", name),
		pr.Sprintf("Loaded pets: %d (%d standing, %d sitting, %d roaming, %d independent)",
			cat.Total(), len(cat.Standing), len(cat.Sitting), len(cat.Roaming), len(cat.Independent)),
		pr.Sprintf("Active leases: %d", len(deps.Leases.Leases(owner))),
		pr.Sprintf("Pending recovery: %d", deps.Leases.PendingRecovery(owner)),
		pr.Sprintf("Whitelist entries: %d", deps.Whitelist.List(owner).Len()),
		fmt.Sprintf("First recovery done: %t", deps.Leases.FirstRecoveryDone(owner)),
	}
	if deps.Scans.Scanning(owner) {
		lines = append(lines, "A pet search is running.")
	}
	return ok(lines...)
}
