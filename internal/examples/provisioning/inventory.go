package provisioning

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Inventory describes the hosts available and the clusters to place on
// them.
type Inventory struct {
	Hosts    map[string]Host    `yaml:"hosts"`
	Clusters map[string]Cluster `yaml:"clusters"`
}

type Resources struct {
	RAM  int `yaml:"ram"`
	CPUs int `yaml:"cpus"`
	Disk int `yaml:"disk"`
}

type Host struct {
	Resources `yaml:",inline"`
	// Down marks a host as unavailable.
	Down bool `yaml:"down"`
}

// Cluster asks for Nodes nodes, each on a different host, each needing
// the given resources.
type Cluster struct {
	Resources `yaml:",inline"`
	Nodes     int `yaml:"nodes"`
}

// ParseInventory decodes a YAML inventory. Unknown fields are rejected.
func ParseInventory(r io.Reader) (*Inventory, error) {
	var inv Inventory
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty inventory")
		}
		return nil, fmt.Errorf("error decoding inventory: %w", err)
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (inv *Inventory) Validate() error {
	if len(inv.Hosts) == 0 {
		return errors.New("inventory has no hosts")
	}
	for name, h := range inv.Hosts {
		if h.RAM < 0 || h.CPUs < 0 || h.Disk < 0 {
			return fmt.Errorf("host %q has negative resources", name)
		}
	}
	for name, c := range inv.Clusters {
		if c.Nodes < 1 {
			return fmt.Errorf("cluster %q needs at least one node", name)
		}
		if c.RAM < 0 || c.CPUs < 0 || c.Disk < 0 {
			return fmt.Errorf("cluster %q has negative resources", name)
		}
	}
	return nil
}

func (r Resources) values() map[string]int {
	return map[string]int{"ram": r.RAM, "cpus": r.CPUs, "disk": r.Disk}
}
