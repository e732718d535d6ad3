package plugin

import (
	"github.com/R3E-Network/bankline/pkg/logger"
)

// Chain is an ordered, deduplicated list of units. The optional hooks are
// resolved once at construction.
type Chain struct {
	plugins   []Plugin
	failures  []FailureObserver
	responder []Responder
	finishers []Finisher
}

// NewChain builds a chain in the given order. A unit whose ID was already
// registered is dropped, so default units are never inserted twice.
func NewChain(log *logger.Logger, plugins ...Plugin) *Chain {
	if log == nil {
		log = logger.NewDefault("plugin")
	}

	c := &Chain{}
	seen := make(map[string]bool, len(plugins))
	for _, p := range plugins {
		if p == nil {
			continue
		}
		id := p.ID()
		if seen[id] {
			log.WithField("plugin", id).Warn("duplicate plugin dropped")
			continue
		}
		seen[id] = true
		c.plugins = append(c.plugins, p)

		if fo, ok := p.(FailureObserver); ok {
			c.failures = append(c.failures, fo)
		}
		if r, ok := p.(Responder); ok {
			c.responder = append(c.responder, r)
		}
		if f, ok := p.(Finisher); ok {
			c.finishers = append(c.finishers, f)
		}
	}
	return c
}

// With returns a new chain with extra units appended (deduplicated).
func (c *Chain) With(log *logger.Logger, extra ...Plugin) *Chain {
	all := make([]Plugin, 0, len(c.plugins)+len(extra))
	all = append(all, c.plugins...)
	all = append(all, extra...)
	return NewChain(log, all...)
}

// Plugins returns the units in registration order.
func (c *Chain) Plugins() []Plugin {
	out := make([]Plugin, len(c.plugins))
	copy(out, c.plugins)
	return out
}

// FailureObservers returns the units that see transport failures, in
// registration order.
func (c *Chain) FailureObservers() []FailureObserver { return c.failures }

// Responders returns the units that may answer a call without the transport.
func (c *Chain) Responders() []Responder { return c.responder }

// Finishers returns the units notified once a call completes.
func (c *Chain) Finishers() []Finisher { return c.finishers }

// Len returns the number of units.
func (c *Chain) Len() int { return len(c.plugins) }

// Has reports whether a unit with id is registered.
func (c *Chain) Has(id string) bool {
	for _, p := range c.plugins {
		if p.ID() == id {
			return true
		}
	}
	return false
}

// Info lists the registered units in order.
func (c *Chain) Info() []Info {
	infos := make([]Info, 0, len(c.plugins))
	for i, p := range c.plugins {
		infos = append(infos, Info{ID: p.ID(), Position: i})
	}
	return infos
}
