package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type probe struct {
	phase Phase
	name  string
	log   *[]string
}

func (p probe) Phase() Phase           { return p.phase }
func (p probe) Update(_ time.Duration) { *p.log = append(*p.log, p.name) }

func TestRunnerOrdersByPhaseThenRegistration(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(probe{PhasePersist, "save", &log})
	r.Register(probe{PhaseUpdate, "lease-a", &log})
	r.Register(probe{PhaseInput, "input", &log})
	r.Register(probe{PhaseUpdate, "lease-b", &log})

	r.Tick(50 * time.Millisecond)
	assert.Equal(t, []string{"input", "lease-a", "lease-b", "save"}, log)
	assert.Equal(t, uint64(1), r.Ticks())

	r.Register(probe{PhasePreUpdate, "dispatch", &log})
	log = nil
	r.Tick(50 * time.Millisecond)
	assert.Equal(t, []string{"input", "dispatch", "lease-a", "lease-b", "save"}, log)
}
