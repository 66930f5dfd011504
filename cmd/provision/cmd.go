package provision

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/operator-framework/amb/cmd/options"
	"github.com/operator-framework/amb/internal/examples/provisioning"
	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/predicate"
)

func NewProvisionCommand(opts *options.Options) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "provision <inventory.yaml>",
		Short: "Places the clusters of an inventory onto its hosts",
		Long: `Places the clusters of an inventory onto its hosts. For instance:
hosts:
  h1: {ram: 64, cpus: 4, disk: 500}
  h2: {ram: 64, cpus: 4, disk: 500, down: true}
clusters:
  web: {nodes: 2, ram: 8, cpus: 2, disk: 50}

With --watch the inventory is solved again, starting from the current
placement, every time the file changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &provisioner{
				opts:   opts,
				path:   args[0],
				out:    cmd.OutOrStdout(),
				logger: opts.Logger().WithName("provision"),
			}
			inv, err := p.load()
			if err != nil {
				return err
			}
			p.graph, err = provisioning.New(inv, opts.GraphOptions()...)
			if err != nil {
				return err
			}
			if err := p.resolve(cmd); err != nil && (!watch || !errors.Is(err, amb.ErrUnsatisfiable)) {
				return err
			}
			if !watch {
				return nil
			}
			return p.watch(cmd)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "solve again whenever the inventory changes")
	return cmd
}

type provisioner struct {
	opts   *options.Options
	path   string
	out    io.Writer
	logger logr.Logger
	graph  *predicate.Graph
}

func (p *provisioner) load() (*provisioning.Inventory, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("error opening inventory (%s): %w", p.path, err)
	}
	defer f.Close()
	inv, err := provisioning.ParseInventory(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing inventory (%s): %w", p.path, err)
	}
	return inv, nil
}

func (p *provisioner) resolve(cmd *cobra.Command) error {
	env, err := p.graph.Resolve(cmd.Context(), p.opts.SolverOptions()...)
	if errors.Is(err, amb.ErrUnsatisfiable) {
		fmt.Fprintln(p.out, "no placement found")
		return err
	}
	if err != nil {
		return err
	}
	placement, err := provisioning.Placement(env)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.out)
	defer enc.Close()
	return enc.Encode(placement)
}

// watch re-solves on every write to the inventory. The directory is
// watched rather than the file so editors that replace it are seen.
func (p *provisioner) watch(cmd *cobra.Command) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target, err := filepath.Abs(p.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("error watching %s: %w", p.path, err)
	}
	p.logger.Info("watching inventory", "path", target)

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			p.logger.V(1).Info("inventory changed", "op", event.Op.String())
			if err := p.reload(cmd); err != nil {
				p.logger.Error(err, "inventory not applied")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error(err, "watch error")
		}
	}
}

func (p *provisioner) reload(cmd *cobra.Command) error {
	inv, err := p.load()
	if err != nil {
		return err
	}
	if err := provisioning.Sync(p.graph, inv); err != nil {
		return err
	}
	return p.resolve(cmd)
}
