package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petward/server/internal/command"
	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/core/event"
	"github.com/petward/server/internal/discovery"
	"github.com/petward/server/internal/whitelist"
	"github.com/petward/server/internal/world"
)

// readLines feeds stdin to the tick loop. Runs on its own goroutine.
func readLines(r io.Reader, out chan<- string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out <- line
		}
	}
	close(out)
}

// console stands in for the host's connection layer: it connects simulated
// players, spawns their pets, and forwards everything else to the command
// handler. Tick thread only.
type console struct {
	world *world.State
	bus   *event.Bus
	deps  *command.Deps
	log   *zap.Logger
	quit  func()
	out   command.Console
}

func newConsole(ws *world.State, bus *event.Bus, deps *command.Deps, log *zap.Logger, quit func()) *console {
	return &console{
		world: ws,
		bus:   bus,
		deps:  deps,
		log:   log,
		quit:  quit,
		out:   command.Console{Out: func(m string) { fmt.Println(m) }},
	}
}

func (c *console) exec(line string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}
	args := parts[1:]

	switch strings.ToLower(parts[0]) {
	case "join":
		c.join(args)
	case "leave":
		c.leave(args)
	case "tp":
		c.teleport(args)
	case "pet":
		c.spawnPet(args)
	case "sit":
		c.toggleSit(args)
	case "attack":
		c.attack(args)
	case "as":
		c.as(args)
	case "save":
		if err := c.world.SaveAll(); err != nil {
			c.log.Error("存檔失敗", zap.Error(err))
		}
		c.out.Send("Saved.")
	case "stop", "quit":
		c.quit()
	default:
		c.print(command.Handle(c.out, line, c.deps))
	}
}

func (c *console) print(r command.Result) {
	for _, l := range r.Lines {
		c.out.Send(l)
	}
}

func (c *console) player(name string) *world.Player {
	p := c.world.PlayerByName(name)
	if p == nil {
		c.out.Send("No such player: " + name)
	}
	return p
}

// join <name> [uuid] [op]
func (c *console) join(args []string) {
	if len(args) == 0 {
		c.out.Send("Usage: join <name> [uuid] [op]")
		return
	}
	name := args[0]
	if c.world.PlayerByName(name) != nil {
		c.out.Send(name + " is already online.")
		return
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("OfflinePlayer:"+name))
	if len(args) > 1 {
		parsed, err := uuid.Parse(args[1])
		if err != nil {
			c.out.Send("Bad UUID: " + args[1])
			return
		}
		id = parsed
	}
	p := world.NewPlayer(id, name, discovery.Overworld, companion.Vec3{Y: 64}, func(m string) {
		fmt.Printf("[%s] %s\n", name, m)
	})
	p.Op = len(args) > 2 && args[2] == "op"
	c.world.AddPlayer(p)
	event.Emit(c.bus, event.OwnerJoined{Owner: id, Name: name})
	c.log.Info("玩家上線", zap.String("name", name), zap.String("uuid", id.String()))
}

// leave <name>
func (c *console) leave(args []string) {
	if len(args) == 0 {
		c.out.Send("Usage: leave <name>")
		return
	}
	p := c.player(args[0])
	if p == nil {
		return
	}
	c.world.RemovePlayer(p.UUID)
	event.Emit(c.bus, event.OwnerLeft{Owner: p.UUID, Name: p.Username})
	c.log.Info("玩家離線", zap.String("name", p.Username))
}

// tp <name> <dimension> <x> <y> <z>
func (c *console) teleport(args []string) {
	if len(args) < 5 {
		c.out.Send("Usage: tp <name> <dimension> <x> <y> <z>")
		return
	}
	p := c.player(args[0])
	if p == nil {
		return
	}
	pos, ok := parseVec(args[2:5])
	if !ok {
		c.out.Send("Coordinates must be numbers.")
		return
	}
	from := p.Dim
	p.Dim, p.Position = args[1], pos
	if from != p.Dim {
		event.Emit(c.bus, event.PartitionChanged{Owner: p.UUID, From: from, To: p.Dim})
	}
}

// pet <owner> <type> [name]
func (c *console) spawnPet(args []string) {
	if len(args) < 2 {
		c.out.Send("Usage: pet <owner> <type> [name]")
		return
	}
	p := c.player(args[0])
	if p == nil {
		return
	}
	pet := &world.Pet{
		UUID:     uuid.New(),
		TypeTag:  whitelist.NormalizeType(args[1]),
		OwnerID:  p.UUID,
		IsTamed:  true,
		Position: companion.Vec3{X: p.Position.X + 1, Y: p.Position.Y, Z: p.Position.Z},
		Dim:      p.Dim,
	}
	if len(args) > 2 {
		pet.CustomName = strings.Join(args[2:], " ")
	}
	c.world.AddPet(pet)
	c.out.Send(fmt.Sprintf("Spawned %s %s for %s.", pet.TypeTag, pet.UUID, p.Username))
}

// sit <pet uuid>
func (c *console) toggleSit(args []string) {
	pet := c.pet(args)
	if pet == nil {
		return
	}
	pet.IsSitting = !pet.IsSitting
	c.out.Send(fmt.Sprintf("%s sitting=%t", pet.UUID, pet.IsSitting))
}

// attack <pet uuid> <player name | entity type>
func (c *console) attack(args []string) {
	if len(args) < 2 {
		c.out.Send("Usage: attack <pet uuid> <player|type>")
		return
	}
	pet := c.pet(args[:1])
	if pet == nil {
		return
	}
	target := companion.Target{ID: uuid.New(), Type: whitelist.NormalizeType(args[1])}
	if p := c.world.PlayerByName(args[1]); p != nil {
		target = companion.Target{ID: p.UUID, Type: "minecraft:player", Player: true}
	}
	if c.world.TrySetTarget(pet, target) {
		c.out.Send(fmt.Sprintf("%s now targets %s.", pet.UUID, args[1]))
	} else {
		c.out.Send(fmt.Sprintf("%s refused to target %s (whitelisted).", pet.UUID, args[1]))
	}
}

// as <name> <command...>
func (c *console) as(args []string) {
	if len(args) < 2 {
		c.out.Send("Usage: as <name> <command...>")
		return
	}
	p := c.player(args[0])
	if p == nil {
		return
	}
	for _, l := range command.Handle(p, strings.Join(args[1:], " "), c.deps).Lines {
		p.Send(l)
	}
}

func (c *console) pet(args []string) *world.Pet {
	if len(args) == 0 {
		c.out.Send("Missing pet UUID.")
		return nil
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		c.out.Send("Bad UUID: " + args[0])
		return nil
	}
	pet := c.world.GetPet(id)
	if pet == nil {
		c.out.Send("No such pet: " + args[0])
	}
	return pet
}

func parseVec(f []string) (companion.Vec3, bool) {
	var v [3]float64
	for i := range v {
		n, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return companion.Vec3{}, false
		}
		v[i] = n
	}
	return companion.Vec3{X: v[0], Y: v[1], Z: v[2]}, true
}
