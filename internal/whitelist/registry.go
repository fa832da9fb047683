// Package whitelist keeps, per owner, the players, entity types and single
// entities that owner's companions must never attack.
package whitelist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
)

// Kind selects one of the three per-owner lists.
type Kind int

const (
	KindPlayer Kind = iota + 1
	KindType
	KindEntity
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindType:
		return "type"
	case KindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// ParseKind accepts the command selector names.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "player", "players":
		return KindPlayer, true
	case "type", "types", "entity_type":
		return KindType, true
	case "entity", "entities", "mob":
		return KindEntity, true
	}
	return 0, false
}

var ErrBadValue = errors.New("whitelist: invalid value")

type entry struct {
	players  mapset.Set[uuid.UUID]
	types    mapset.Set[string]
	entities mapset.Set[uuid.UUID]
}

func newEntry() *entry {
	return &entry{
		players:  mapset.NewThreadUnsafeSet[uuid.UUID](),
		types:    mapset.NewThreadUnsafeSet[string](),
		entities: mapset.NewThreadUnsafeSet[uuid.UUID](),
	}
}

func (e *entry) empty() bool {
	return e.players.Cardinality() == 0 && e.types.Cardinality() == 0 && e.entities.Cardinality() == 0
}

// fileEntry is the on-disk shape of one owner.
type fileEntry struct {
	Players     []string `json:"players"`
	EntityTypes []string `json:"entity_types"`
	Entities    []string `json:"entities"`
}

// View is a sorted copy of one owner's lists.
type View struct {
	Players  []uuid.UUID
	Types    []string
	Entities []uuid.UUID
}

func (v View) Len() int { return len(v.Players) + len(v.Types) + len(v.Entities) }

// Registry is read from the targeting hot path and mutated by commands, both
// on the tick thread. Every successful mutation rewrites the file.
type Registry struct {
	path   string
	log    *zap.Logger
	owners map[uuid.UUID]*entry

	mu        sync.Mutex // guards lastSaved and saves, read by the watcher goroutine
	lastSaved []byte
	saves     uint64
}

// Open loads path. A missing file yields an empty registry.
func Open(path string, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{path: path, log: log, owners: make(map[uuid.UUID]*entry)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	owners, err := r.decode(data)
	if err != nil {
		return nil, err
	}
	r.owners = owners
	r.lastSaved = data
	return r, nil
}

func (r *Registry) Path() string { return r.path }

// IsWhitelisted reports whether owner protects target. Players are matched
// against the player list only; other entities against the single-entity
// list, then the type list.
func (r *Registry) IsWhitelisted(owner uuid.UUID, t companion.Target) bool {
	e, ok := r.owners[owner]
	if !ok {
		return false
	}
	if t.Player {
		return e.players.Contains(t.ID)
	}
	if e.entities.Contains(t.ID) {
		return true
	}
	return t.Type != "" && e.types.Contains(NormalizeType(t.Type))
}

// NormalizeType lower-cases a type tag and adds the default namespace.
func NormalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.Contains(s, ":") {
		s = "minecraft:" + s
	}
	return s
}

// Add inserts value into the owner's kind list. changed is false when it was
// already present. value is a UUID for players and entities, a type tag for
// types.
func (r *Registry) Add(owner uuid.UUID, kind Kind, value string) (changed bool, err error) {
	return r.mutate(owner, kind, value, true)
}

// Remove deletes value from the owner's kind list.
func (r *Registry) Remove(owner uuid.UUID, kind Kind, value string) (changed bool, err error) {
	return r.mutate(owner, kind, value, false)
}

func (r *Registry) mutate(owner uuid.UUID, kind Kind, value string, add bool) (bool, error) {
	e, ok := r.owners[owner]
	if !ok {
		if !add {
			return false, validate(kind, value)
		}
		e = newEntry()
	}

	var changed bool
	switch kind {
	case KindPlayer, KindEntity:
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a UUID", ErrBadValue, value)
		}
		set := e.players
		if kind == KindEntity {
			set = e.entities
		}
		changed = toggle(set, id, add)
	case KindType:
		t := NormalizeType(value)
		if t == "" {
			return false, fmt.Errorf("%w: empty type", ErrBadValue)
		}
		changed = toggle(e.types, t, add)
	default:
		return false, fmt.Errorf("%w: unknown list", ErrBadValue)
	}
	if !changed {
		return false, nil
	}

	if e.empty() {
		delete(r.owners, owner)
	} else {
		r.owners[owner] = e
	}
	return true, r.save()
}

func validate(kind Kind, value string) error {
	switch kind {
	case KindPlayer, KindEntity:
		if _, err := uuid.Parse(strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%w: %q is not a UUID", ErrBadValue, value)
		}
	case KindType:
		if NormalizeType(value) == "" {
			return fmt.Errorf("%w: empty type", ErrBadValue)
		}
	default:
		return fmt.Errorf("%w: unknown list", ErrBadValue)
	}
	return nil
}

func toggle[T comparable](s mapset.Set[T], v T, add bool) bool {
	if add {
		return s.Add(v)
	}
	if !s.Contains(v) {
		return false
	}
	s.Remove(v)
	return true
}

// Clear drops every list of owner. Returns the number of entries removed.
func (r *Registry) Clear(owner uuid.UUID) (int, error) {
	e, ok := r.owners[owner]
	if !ok {
		return 0, nil
	}
	n := e.players.Cardinality() + e.types.Cardinality() + e.entities.Cardinality()
	delete(r.owners, owner)
	return n, r.save()
}

// List returns a sorted copy of the owner's lists.
func (r *Registry) List(owner uuid.UUID) View {
	var v View
	e, ok := r.owners[owner]
	if !ok {
		return v
	}
	v.Players = sortedIDs(e.players)
	v.Entities = sortedIDs(e.entities)
	v.Types = e.types.ToSlice()
	sort.Strings(v.Types)
	return v
}

// Owners returns how many owners have at least one entry.
func (r *Registry) Owners() int { return len(r.owners) }

func sortedIDs(s mapset.Set[uuid.UUID]) []uuid.UUID {
	out := s.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ---------- persistence ----------

func (r *Registry) encode() ([]byte, error) {
	file := make(map[string]fileEntry, len(r.owners))
	for owner := range r.owners {
		v := r.List(owner)
		fe := fileEntry{
			Players:     make([]string, len(v.Players)),
			EntityTypes: v.Types,
			Entities:    make([]string, len(v.Entities)),
		}
		for i, id := range v.Players {
			fe.Players[i] = id.String()
		}
		for i, id := range v.Entities {
			fe.Entities[i] = id.String()
		}
		if fe.EntityTypes == nil {
			fe.EntityTypes = []string{}
		}
		file[owner.String()] = fe
	}
	// encoding/json sorts map keys, so the output is stable.
	return json.MarshalIndent(file, "", "  ")
}

// decode parses a whitelist file. Malformed UUIDs are logged and dropped.
func (r *Registry) decode(data []byte) (map[uuid.UUID]*entry, error) {
	var file map[string]fileEntry
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse whitelist %s: %w", r.path, err)
	}
	owners := make(map[uuid.UUID]*entry, len(file))
	for key, fe := range file {
		owner, err := uuid.Parse(key)
		if err != nil {
			r.log.Warn("白名單擁有者 UUID 無效，略過", zap.String("owner", key))
			continue
		}
		e := newEntry()
		for _, s := range fe.Players {
			if id, err := uuid.Parse(s); err == nil {
				e.players.Add(id)
			} else {
				r.log.Warn("白名單玩家 UUID 無效，略過", zap.String("owner", key), zap.String("value", s))
			}
		}
		for _, s := range fe.Entities {
			if id, err := uuid.Parse(s); err == nil {
				e.entities.Add(id)
			} else {
				r.log.Warn("白名單實體 UUID 無效，略過", zap.String("owner", key), zap.String("value", s))
			}
		}
		for _, s := range fe.EntityTypes {
			if t := NormalizeType(s); t != "" {
				e.types.Add(t)
			}
		}
		if !e.empty() {
			owners[owner] = e
		}
	}
	return owners, nil
}

// save writes the whole registry to a temp file and renames it into place.
func (r *Registry) save() error {
	data, err := r.encode()
	if err != nil {
		return fmt.Errorf("encode whitelist: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create whitelist dir: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write whitelist: %w", err)
	}
	r.mu.Lock()
	r.lastSaved = data
	r.saves++
	r.mu.Unlock()
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace whitelist: %w", err)
	}
	return nil
}

// Reload re-reads the file and replaces the in-memory registry.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		r.replace(make(map[uuid.UUID]*entry), nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read whitelist: %w", err)
	}
	owners, err := r.decode(data)
	if err != nil {
		return err
	}
	r.replace(owners, data)
	return nil
}

func (r *Registry) replace(owners map[uuid.UUID]*entry, data []byte) {
	r.owners = owners
	r.mu.Lock()
	r.lastSaved = data
	r.mu.Unlock()
}

// generation counts the saves made by this process.
func (r *Registry) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// isOwnWrite reports whether data matches what this process last wrote.
func (r *Registry) isOwnWrite(data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(data) == string(r.lastSaved)
}
