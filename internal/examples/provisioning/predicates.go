package provisioning

import (
	"fmt"
	"math"
	"strconv"

	"github.com/operator-framework/amb/pkg/amb/predicate"
	"github.com/operator-framework/amb/pkg/amb/varstore"
)

var (
	hostsPath    = varstore.Path{"hosts"}
	clustersPath = varstore.Path{"clusters"}
	nodesPath    = varstore.Path{"nodes"}

	resources = []string{"cpus", "disk", "ram"}
)

// Register defines the provisioning predicates:
//
//	cluster(name)        places every node of a cluster
//	node(cluster, index) picks a host for one node
//	host(name)           holds while the host is up
//	reserve(host, ...)   allocates a node's resources on a host
func Register(r *predicate.Registry) error {
	for name, fn := range map[string]predicate.Func{
		"cluster": cluster,
		"node":    node,
		"host":    host,
		"reserve": reserve,
	} {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func cluster(env *predicate.Env, args predicate.Args) (interface{}, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	nodes, err := watchInt(env, clustersPath.Child(name, "nodes"))
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, nodes)
	for i := 0; i < nodes; i++ {
		h, err := env.Require("node", name, i)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h.(string))
	}
	return hosts, nil
}

func node(env *predicate.Env, args predicate.Args) (interface{}, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	index, err := args.Int(1)
	if err != nil {
		return nil, err
	}
	if err := env.Watch(hostsPath); err != nil {
		return nil, err
	}
	hosts, err := env.Vars().List(hostsPath)
	if err != nil {
		return nil, err
	}
	h := predicate.Choose(env, hosts...)
	if _, err := env.Require("host", h); err != nil {
		return nil, err
	}

	need := map[string]interface{}{"cluster": name, "node": index}
	for _, r := range resources {
		v, err := watchInt(env, clustersPath.Child(name, r))
		if err != nil {
			return nil, err
		}
		need[r] = v
	}
	if _, err := env.RequireArgs("reserve", predicate.Args{
		Positional: []interface{}{h},
		Keyword:    need,
	}); err != nil {
		return nil, err
	}
	return h, nil
}

func host(env *predicate.Env, args predicate.Args) (interface{}, error) {
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	p := hostsPath.Child(name, "down")
	if err := env.Watch(p); err != nil {
		return nil, err
	}
	down, err := env.Vars().GetDefault(p, false)
	if err != nil {
		return nil, err
	}
	if down == true {
		env.Prune()
	}
	return name, nil
}

// reserve allocates resources for one node on a host. Every node keeps
// one allocation record under /nodes/<cluster>/<index>; a record left by
// the node's previous reservation is replaced rather than counted. Nodes
// of the same cluster never share a host.
func reserve(env *predicate.Env, args predicate.Args) (interface{}, error) {
	h, err := args.String(0)
	if err != nil {
		return nil, err
	}
	name, ok := args.Keyword["cluster"].(string)
	if !ok {
		return nil, fmt.Errorf("reserve on %s: missing cluster", h)
	}
	index, err := toInt(args.Keyword["node"])
	if err != nil {
		return nil, fmt.Errorf("reserve on %s: node %w", h, err)
	}
	self, _ := env.Current()
	owner := self.String()
	vars := env.Vars()
	record := nodesPath.Child(name, strconv.Itoa(index))

	records, err := allocations(vars)
	if err != nil {
		return nil, err
	}
	used := map[string]int{}
	for _, a := range records {
		if a.path.Equal(record) || a.host != h {
			continue
		}
		if a.cluster == name {
			env.Prune()
		}
		for r, n := range a.need {
			used[r] += n
		}
	}

	need := map[string]int{}
	for _, r := range resources {
		n, err := toInt(args.Keyword[r])
		if err != nil {
			return nil, fmt.Errorf("reserve %s on %s: %w", r, h, err)
		}
		capacity, err := watchInt(env, hostsPath.Child(h, r))
		if err != nil {
			return nil, err
		}
		if used[r]+n > capacity {
			env.Prune()
		}
		need[r] = n
	}

	if err := vars.Put(record.Child("host"), h); err != nil {
		return nil, err
	}
	if err := vars.Put(record.Child("owner"), owner); err != nil {
		return nil, err
	}
	for r, n := range need {
		if err := vars.Put(record.Child(r), n); err != nil {
			return nil, err
		}
	}
	return nil, env.Cleanup(func(env *predicate.Env) error {
		vars := env.Vars()
		current, err := vars.GetDefault(record.Child("owner"), "")
		if err != nil || current != owner {
			// a later reservation of the node owns the record
			return err
		}
		return vars.Remove(record)
	})
}

type allocation struct {
	path    varstore.Path
	cluster string
	host    string
	need    map[string]int
}

// allocations reads every node record of the store.
func allocations(vars *varstore.Store) ([]allocation, error) {
	if !vars.Exists(nodesPath) {
		return nil, nil
	}
	clusters, err := vars.List(nodesPath)
	if err != nil {
		return nil, err
	}
	var out []allocation
	for _, c := range clusters {
		indices, err := vars.List(nodesPath.Child(c))
		if err != nil {
			return nil, err
		}
		for _, i := range indices {
			p := nodesPath.Child(c, i)
			host, err := vars.Get(p.Child("host"))
			if err != nil {
				return nil, err
			}
			a := allocation{path: p, cluster: c, need: map[string]int{}}
			a.host, _ = host.(string)
			for _, r := range resources {
				if a.need[r], err = intAt(vars, p.Child(r)); err != nil {
					return nil, err
				}
			}
			out = append(out, a)
		}
	}
	return out, nil
}

func watchInt(env *predicate.Env, p varstore.Path) (int, error) {
	if err := env.Watch(p); err != nil {
		return 0, err
	}
	return intAt(env.Vars(), p)
}

func intAt(vars *varstore.Store, p varstore.Path) (int, error) {
	v, err := vars.GetDefault(p, 0)
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}
	return n, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("%v is not a number", v)
}
