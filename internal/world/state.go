package world

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/petward/server/internal/companion"
)

// TargetFilter vetoes hostile target selection on behalf of an owner.
type TargetFilter interface {
	Suppress(owner uuid.UUID, target companion.Target) bool
}

// State is the in-process host model: connected players, resident pets and
// the chunk ticket table. Accessed only from the tick-loop goroutine.
type State struct {
	players map[uuid.UUID]*Player
	byName  map[string]*Player // lower-case name → player
	pets    map[uuid.UUID]*Pet

	Tickets *TicketManager

	filter TargetFilter
	saver  func() error
}

func NewState() *State {
	return &State{
		players: make(map[uuid.UUID]*Player),
		byName:  make(map[string]*Player),
		pets:    make(map[uuid.UUID]*Pet),
		Tickets: NewTicketManager(),
	}
}

// ---------- players ----------

func (s *State) AddPlayer(p *Player) {
	s.players[p.UUID] = p
	s.byName[strings.ToLower(p.Username)] = p
}

func (s *State) RemovePlayer(id uuid.UUID) *Player {
	p, ok := s.players[id]
	if !ok {
		return nil
	}
	delete(s.players, id)
	delete(s.byName, strings.ToLower(p.Username))
	return p
}

func (s *State) GetPlayer(id uuid.UUID) *Player { return s.players[id] }

func (s *State) PlayerByName(name string) *Player {
	return s.byName[strings.ToLower(name)]
}

// AllPlayers returns connected players ordered by name.
func (s *State) AllPlayers() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *State) PlayerCount() int { return len(s.players) }

// OwnerPartition returns the partition an online owner stands in.
func (s *State) OwnerPartition(owner uuid.UUID) (string, bool) {
	p, ok := s.players[owner]
	if !ok {
		return "", false
	}
	return p.Dim, true
}

// ---------- pets ----------

func (s *State) AddPet(p *Pet) { s.pets[p.UUID] = p }

func (s *State) RemovePet(id uuid.UUID) *Pet {
	p, ok := s.pets[id]
	if !ok {
		return nil
	}
	delete(s.pets, id)
	return p
}

func (s *State) GetPet(id uuid.UUID) *Pet { return s.pets[id] }

func (s *State) PetCount() int { return len(s.pets) }

// PetsOf returns the resident pets owned by owner, in every partition.
func (s *State) PetsOf(owner uuid.UUID) []*Pet {
	var out []*Pet
	for _, p := range s.pets {
		if p.OwnerID == owner && owner != uuid.Nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID.String() < out[j].UUID.String() })
	return out
}

// CompanionsOf adapts PetsOf to the companion capability.
func (s *State) CompanionsOf(owner uuid.UUID) []companion.Companion {
	pets := s.PetsOf(owner)
	out := make([]companion.Companion, len(pets))
	for i, p := range pets {
		out[i] = p
	}
	return out
}

// Companion looks up a resident companion by identity.
func (s *State) Companion(id uuid.UUID) (companion.Companion, bool) {
	p, ok := s.pets[id]
	if !ok {
		return nil, false
	}
	return p, true
}

// ---------- targeting ----------

func (s *State) SetTargetFilter(f TargetFilter) { s.filter = f }

// TrySetTarget is the hostile target-selection hook. A tamed pet never
// targets anything its owner whitelisted; the veto leaves the current target
// untouched.
func (s *State) TrySetTarget(pet *Pet, target companion.Target) bool {
	if owner, ok := pet.Owner(); ok && pet.IsTamed && s.filter != nil {
		if s.filter.Suppress(owner, target) {
			return false
		}
	}
	pet.Target = target.ID
	return true
}

// ---------- saving ----------

// SetSaver installs the hook that flushes resident entity data to disk.
func (s *State) SetSaver(fn func() error) { s.saver = fn }

// SaveAll flushes resident entity data. A host without a saver is a no-op.
func (s *State) SaveAll() error {
	if s.saver == nil {
		return nil
	}
	return s.saver()
}

// ---------- upkeep ----------

// Tick ages tickets and glow timers. Returns the number of expired tickets.
func (s *State) Tick() int {
	for _, p := range s.pets {
		if p.GlowTicks > 0 {
			p.GlowTicks--
		}
	}
	return s.Tickets.Tick()
}
