package command

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/petward/server/internal/whitelist"
)

func whitelistCmd(s Sender, args []string, deps *Deps) Result {
	p, res, found := player(s, deps)
	if !found {
		return res
	}
	owner := p.UUID
	if len(args) == 0 {
		return fail("Usage: whitelist add|remove <player|type|entity> <value> | list | clear")
	}

	switch strings.ToLower(args[0]) {
	case "list":
		return whitelistList(deps.Whitelist.List(owner), deps)
	case "clear":
		n, err := deps.Whitelist.Clear(owner)
		if err != nil {
			deps.Log.Error("白名單存檔失敗", zap.String("owner", owner.String()), zap.Error(err))
			return fail("Could not save the whitelist.")
		}
		return ok(deps.Printer.Sprintf("Removed %d whitelist entries.", n))
	case "add", "remove":
		if len(args) < 3 {
			return fail(fmt.Sprintf("Usage: whitelist %s <player|type|entity> <value>", args[0]))
		}
		kind, valid := whitelist.ParseKind(args[1])
		if !valid {
			return fail(fmt.Sprintf("Unknown list %q: use player, type or entity.", args[1]))
		}
		value := args[2]
		label := value
		if kind == whitelist.KindPlayer {
			if target := deps.World.PlayerByName(value); target != nil {
				value, label = target.UUID.String(), target.Username
			}
		} else if kind == whitelist.KindType {
			label = whitelist.NormalizeType(value)
		}

		add := strings.EqualFold(args[0], "add")
		var changed bool
		var err error
		if add {
			changed, err = deps.Whitelist.Add(owner, kind, value)
		} else {
			changed, err = deps.Whitelist.Remove(owner, kind, value)
		}
		switch {
		case errors.Is(err, whitelist.ErrBadValue):
			return fail(fmt.Sprintf("Invalid %s: %s", kind, args[2]))
		case err != nil:
			deps.Log.Error("白名單存檔失敗", zap.String("owner", owner.String()), zap.Error(err))
			return fail("Could not save the whitelist.")
		case !changed && add:
			return ok(fmt.Sprintf("%s is already on your %s whitelist.", label, kind))
		case !changed:
			return ok(fmt.Sprintf("%s is not on your %s whitelist.", label, kind))
		case add:
			return ok(fmt.Sprintf("Your pets will no longer attack %s.", label))
		default:
			return ok(fmt.Sprintf("Removed %s from your %s whitelist.", label, kind))
		}
	default:
		return fail(fmt.Sprintf("Unknown whitelist action: %s", args[0]))
	}
}

func whitelistList(v whitelist.View, deps *Deps) Result {
	if v.Len() == 0 {
		return ok("Your whitelist is empty.")
	}
	lines := []string{deps.Printer.Sprintf("Whitelist (%d entries):", v.Len())}
	for _, id := range v.Players {
		name := id.String()
		if p := deps.World.GetPlayer(id); p != nil {
			name = fmt.Sprintf("%s (%s)", p.Username, id)
		}
		lines = append(lines, "  player "+name)
	}
	for _, t := range v.Types {
		lines = append(lines, "  type "+t)
	}
	for _, id := range v.Entities {
		lines = append(lines, "  entity "+id.String())
	}
	return ok(lines...)
}
