// Package provisioning places clusters of nodes onto hosts with limited
// resources. Every node of a cluster runs on its own host, and a host
// that goes down moves its nodes elsewhere on the next pass.
package provisioning

import (
	"fmt"
	"sort"

	"github.com/operator-framework/amb/pkg/amb/predicate"
	"github.com/operator-framework/amb/pkg/amb/varstore"
)

// New returns a graph with one goal per cluster of the inventory.
func New(inv *Inventory, options ...predicate.Option) (*predicate.Graph, error) {
	registry := predicate.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	g, err := predicate.New(registry, options...)
	if err != nil {
		return nil, err
	}
	if err := g.Vars().Mkdir(hostsPath); err != nil {
		return nil, err
	}
	if err := g.Vars().Mkdir(clustersPath); err != nil {
		return nil, err
	}
	if err := Sync(g, inv); err != nil {
		return nil, err
	}
	return g, nil
}

// Sync writes inv into the baseline of g. Only values that changed are
// written, so only the affected predicates are solved again. Hosts that
// left the inventory are marked down; clusters that left it are
// released.
func Sync(g *predicate.Graph, inv *Inventory) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	vars := g.Vars()

	known, err := vars.List(hostsPath)
	if err != nil {
		return err
	}
	for _, name := range known {
		if _, ok := inv.Hosts[name]; !ok {
			if err := update(vars, hostsPath.Child(name, "down"), true); err != nil {
				return err
			}
		}
	}
	for _, name := range sortedKeys(inv.Hosts) {
		h := inv.Hosts[name]
		for r, v := range h.values() {
			if err := update(vars, hostsPath.Child(name, r), v); err != nil {
				return err
			}
		}
		if err := update(vars, hostsPath.Child(name, "down"), h.Down); err != nil {
			return err
		}
	}

	goals, err := vars.List(clustersPath)
	if err != nil {
		return err
	}
	for _, name := range goals {
		if _, ok := inv.Clusters[name]; ok {
			continue
		}
		if err := g.Release("cluster", name); err != nil {
			return err
		}
		if err := vars.Remove(clustersPath.Child(name)); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(inv.Clusters) {
		c := inv.Clusters[name]
		created := !vars.Exists(clustersPath.Child(name))
		for r, v := range c.values() {
			if err := update(vars, clustersPath.Child(name, r), v); err != nil {
				return err
			}
		}
		if err := update(vars, clustersPath.Child(name, "nodes"), c.Nodes); err != nil {
			return err
		}
		if created {
			if err := g.Require("cluster", name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Placement maps every cluster solved in env to the hosts of its nodes,
// in node order.
func Placement(env *predicate.Env) (map[string][]string, error) {
	names, err := env.Vars().List(clustersPath)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(names))
	for _, name := range names {
		v, ok := env.Value("cluster", name)
		if !ok {
			return nil, fmt.Errorf("cluster %q is %s", name, env.State("cluster", name))
		}
		out[name] = v.([]string)
	}
	return out, nil
}

// Usage returns the resources allocated on a host in env.
func Usage(env *predicate.Env, host string) (map[string]int, error) {
	records, err := allocations(env.Vars())
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, r := range resources {
		out[r] = 0
	}
	for _, a := range records {
		if a.host != host {
			continue
		}
		for r, n := range a.need {
			out[r] += n
		}
	}
	return out, nil
}

func update(vars *varstore.Store, p varstore.Path, v interface{}) error {
	if current, err := vars.Get(p); err == nil && current == v {
		return nil
	}
	return vars.Put(p, v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
