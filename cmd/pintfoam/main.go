// Command pintfoam manages the working cases spawned from an OpenFOAM base
// case: it removes them, lists snapshot times, archives and restores
// snapshots and prints their lineage.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pintfoam/internal/archive"
	"pintfoam/internal/catalog"
	"pintfoam/internal/config"
	"pintfoam/pkg/vector"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "pintfoam: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

// app holds what every subcommand resolves from configuration.
type app struct {
	configPath string
	cfg        config.Config
	log        *logrus.Logger
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}
	root := &cobra.Command{
		Use:           "pintfoam",
		Short:         "Manage solution vectors over OpenFOAM case directories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (overrides PINTFOAM_CONFIG)")
	root.AddCommand(
		newCleanCmd(a),
		newTimesCmd(a),
		newArchiveCmd(a),
		newRestoreCmd(a),
		newLineageCmd(a),
	)
	return root
}

func (a *app) load() error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("PINTFOAM_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.cfg = cfg
	a.log = logrus.New()
	a.log.SetOutput(a.stderr)
	a.log.SetLevel(level)
	return nil
}

func (a *app) openCatalog(ctx context.Context) (catalog.Catalog, error) {
	cat, err := catalog.Open(ctx, a.cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.log.WithField("driver", cat.Driver()).Debug("catalog opened")
	return cat, nil
}

func (a *app) openArchiver(ctx context.Context) (*archive.Archiver, error) {
	store, err := archive.Open(ctx, a.cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a.log.WithField("driver", store.Driver()).Debug("archive opened")
	return archive.NewArchiver(store), nil
}

// baseCase describes root/name with the configured fields, logger and catalog.
// Local stores are preserved so that clean never removes them.
func (a *app) baseCase(root, name string, cat catalog.Catalog) (*vector.BaseCase, error) {
	var keep []string
	if a.cfg.Archive.Driver == "fs" {
		keep = append(keep, a.cfg.Archive.FSRoot)
	}
	if a.cfg.Catalog.Driver == "sqlite" {
		keep = append(keep, filepath.Dir(a.cfg.Catalog.SQLitePath))
	}
	return vector.NewBaseCase(root, name, a.cfg.Fields,
		vector.WithLogger(vector.NewLogrusLogger(a.log)),
		vector.WithCatalog(cat),
		vector.WithCleanParallelism(a.cfg.CleanParallelism),
		vector.WithPreserve(keep...),
	)
}
