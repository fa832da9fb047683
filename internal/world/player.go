package world

import (
	"github.com/google/uuid"

	"github.com/petward/server/internal/companion"
)

// Player holds in-memory data for a connected player.
// Accessed only from the tick-loop goroutine, no locks needed.
type Player struct {
	UUID     uuid.UUID
	Username string
	Dim      string // partition key, e.g. "minecraft:overworld"
	Position companion.Vec3
	Op       bool

	sink func(string)
}

func NewPlayer(id uuid.UUID, name, partition string, pos companion.Vec3, sink func(string)) *Player {
	return &Player{
		UUID:     id,
		Username: name,
		Dim:      partition,
		Position: pos,
		sink:     sink,
	}
}

func (p *Player) ID() uuid.UUID { return p.UUID }
func (p *Player) Name() string  { return p.Username }
func (p *Player) Admin() bool   { return p.Op }
func (p *Player) Chunk() companion.ChunkPos {
	return companion.ChunkOf(p.Position)
}

// Send delivers a chat line to the player. Dropped when no sink is attached.
func (p *Player) Send(msg string) {
	if p.sink != nil {
		p.sink(msg)
	}
}
