// edgewall/pkg/lists/lists.go

package lists

import "sync"

// Provider answers set-membership queries for named lists (blocklist,
// allowlist, botSignatures, threatIntel, ...). List contents and their
// update mechanism live outside the engine.
type Provider interface {
	Lookup(listType, listName, value string) (bool, error)
}

// StaticProvider is an in-memory provider, used for tests and for
// deployments that push list snapshots alongside the rule payload.
type StaticProvider struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{sets: make(map[string]map[string]struct{})}
}

func listKey(listType, listName string) string {
	if listName == "" {
		return listType
	}
	return listType + "/" + listName
}

// Add inserts values into a named list, creating it if needed.
func (p *StaticProvider) Add(listType, listName string, values ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := listKey(listType, listName)
	set, ok := p.sets[key]
	if !ok {
		set = make(map[string]struct{})
		p.sets[key] = set
	}
	for _, v := range values {
		set[v] = struct{}{}
	}
}

// Replace swaps a list's contents atomically.
func (p *StaticProvider) Replace(listType, listName string, values []string) {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	p.mu.Lock()
	p.sets[listKey(listType, listName)] = set
	p.mu.Unlock()
}

func (p *StaticProvider) Lookup(listType, listName, value string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set, ok := p.sets[listKey(listType, listName)]
	if !ok {
		return false, nil
	}
	_, found := set[value]
	return found, nil
}
