package enode

import (
	"regexp"
	"sync"

	"github.com/raskyld/enode/pkg/eterm"
)

const MaxRegisteredNameLength = eterm.MaxAtomLen

var invalidRegisteredName = regexp.MustCompile(`[^A-Za-z0-9\-\._@]+`)

// ValidateRegisteredName tells whether a string may serve as the
// registered name of a mailbox.
func ValidateRegisteredName(name string) bool {
	return len(name) > 0 &&
		len(name) <= MaxRegisteredNameLength &&
		!invalidRegisteredName.MatchString(name)
}

// registry maps registered names to local pids through a radix tree so
// lookups stay ordered and prefix scans are cheap. Claims are checked
// synchronously: two mailboxes can never hold the same name.
type registry struct {
	lk sync.RWMutex
	d  *radixTree[eterm.Pid]
}

func newRegistry() *registry {
	return &registry{d: newRadixTree[eterm.Pid]()}
}

func (reg *registry) claim(name string, pid eterm.Pid) error {
	reg.lk.Lock()
	defer reg.lk.Unlock()
	if _, has := reg.d.Get(name); has {
		return ErrNameTaken
	}
	reg.d.Insert(name, pid)
	return nil
}

func (reg *registry) drop(name string) (eterm.Pid, bool) {
	reg.lk.Lock()
	defer reg.lk.Unlock()
	return reg.d.Delete(name)
}

// dropOwned removes name only while it still maps to pid, so a stale
// deregistration cannot evict a newer claimant.
func (reg *registry) dropOwned(name string, pid eterm.Pid) bool {
	reg.lk.Lock()
	defer reg.lk.Unlock()
	owner, has := reg.d.Get(name)
	if !has || owner != pid {
		return false
	}
	reg.d.Delete(name)
	return true
}

func (reg *registry) resolve(name string) (eterm.Pid, bool) {
	reg.lk.RLock()
	defer reg.lk.RUnlock()
	return reg.d.Get(name)
}

func (reg *registry) scan(prefix string) (found []string) {
	reg.lk.RLock()
	defer reg.lk.RUnlock()
	for name := range reg.d.WalkPrefix(prefix) {
		found = append(found, name)
	}
	return
}
