// Package command implements the player and admin chat commands.
package command

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/config"
	"github.com/petward/server/internal/core/sched"
	"github.com/petward/server/internal/discovery"
	"github.com/petward/server/internal/lease"
	"github.com/petward/server/internal/whitelist"
	"github.com/petward/server/internal/world"
)

// Sender is whoever typed the command: a player or the console.
type Sender interface {
	ID() uuid.UUID
	Name() string
	Admin() bool
	Send(msg string)
}

// Status is the command's exit code.
type Status int

const (
	Failure Status = iota
	Success
)

// Result is the immediate reply. Async commands report the rest later
// through Sender.Send.
type Result struct {
	Status Status
	Lines  []string
}

func (r Result) OK() bool { return r.Status == Success }

func ok(lines ...string) Result   { return Result{Status: Success, Lines: lines} }
func fail(lines ...string) Result { return Result{Status: Failure, Lines: lines} }

// Deps carries the state objects the commands operate on. Built once at
// startup; Store, Independence, Extractor and Partitions may be nil.
type Deps struct {
	World        *world.State
	Leases       *lease.Manager
	Store        lease.Store
	Scans        *discovery.Coordinator
	Queue        *sched.Queue // carries worker results back to the tick thread
	Whitelist    *whitelist.Registry
	Catalog      *companion.Catalog
	Independence companion.Independence // nil when the extension is off
	Extractor    *companion.Extractor
	Config       *config.Config
	Printer      *message.Printer
	Log          *zap.Logger
	Version      string

	// Partitions resolves the dimensions a scan covers. Nil scans every
	// dimension under the world directory.
	Partitions func() []discovery.Partition
}

// NewPrinter returns a number formatter for a BCP 47 tag such as "zh-TW".
func NewPrinter(lang string) *message.Printer {
	return message.NewPrinter(language.Make(lang))
}

func (d *Deps) partitions() []discovery.Partition {
	if d.Partitions != nil {
		return d.Partitions()
	}
	dir := d.Config.World.Dir
	keys := d.Config.World.Partitions
	if len(keys) == 0 {
		keys = discovery.Discover(dir)
	}
	return discovery.Resolve(dir, keys)
}

// notify sends msg to owner if still online.
func (d *Deps) notify(owner uuid.UUID, msg string) {
	if p := d.World.GetPlayer(owner); p != nil {
		p.Send(msg)
	}
}

// Handle parses and runs one command line. A leading "/" is accepted.
func Handle(s Sender, line string, deps *Deps) Result {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return fail("Empty command. Type help for the command list.")
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		return help(s)
	case "recover-pets":
		return recoverPets(s, deps)
	case "locate-pets":
		return locatePets(s, deps)
	case "glow-pets":
		return glowPets(s, deps)
	case "whitelist", "wl":
		return whitelistCmd(s, args, deps)
	case "pet-stats":
		return petStats(s, args, deps)
	case "petadmin":
		return petAdmin(s, args, deps)
	default:
		return fail(fmt.Sprintf("Unknown command: %s. Type help for the command list.", cmd))
	}
}

func help(s Sender) Result {
	lines := []string{
		"=== Pet commands ===",
		"recover-pets  bring your standing pets back to you",
		"locate-pets  list where your pets are",
		"glow-pets  outline your loaded pets",
		"whitelist add|remove <player|type|entity> <value>",
		"whitelist list | clear",
		"pet-stats [player]",
	}
	if s.Admin() {
		lines = append(lines,
			"petadmin cleanup | tickets | version",
			"petadmin reset <player>",
			"petadmin inspect-region <dimension> <rx> <rz>")
	}
	return ok(lines...)
}

// player resolves the sender's in-world body. Console senders have none.
func player(s Sender, deps *Deps) (*world.Player, Result, bool) {
	p := deps.World.GetPlayer(s.ID())
	if p == nil {
		return nil, fail("This command can only be used by a player in the world."), false
	}
	return p, Result{}, true
}

// resolveOwner accepts an online player name or a UUID.
func resolveOwner(arg string, deps *Deps) (uuid.UUID, string, bool) {
	if p := deps.World.PlayerByName(arg); p != nil {
		return p.UUID, p.Username, true
	}
	if id, err := uuid.Parse(arg); err == nil {
		name := id.String()
		if p := deps.World.GetPlayer(id); p != nil {
			name = p.Username
		}
		return id, name, true
	}
	return uuid.Nil, "", false
}

// Console is the server operator typing at stdin.
type Console struct {
	Out func(string)
}

func (Console) ID() uuid.UUID { return uuid.Nil }
func (Console) Name() string  { return "console" }
func (Console) Admin() bool   { return true }
func (c Console) Send(msg string) {
	if c.Out != nil {
		c.Out(msg)
	}
}
