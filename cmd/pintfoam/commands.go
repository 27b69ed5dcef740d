package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"pintfoam/internal/catalog"
	"pintfoam/internal/snapshot"
	"pintfoam/internal/solver"
)

func baseCaseFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "base-case", "", "name of the base case (default from config, baseCase)")
}

func (a *app) baseName(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.BaseCase
}

func newCleanCmd(a *app) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "clean <target>",
		Short: "Delete every working case of the base case under target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			cat, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := cat.Close(); cerr != nil {
					err = multierror.Append(err, cerr).ErrorOrNil()
				}
			}()
			b, err := a.baseCase(args[0], a.baseName(base), cat)
			if err != nil {
				return err
			}
			paths, err := b.VectorPaths()
			if err != nil {
				return err
			}
			if err := b.Clean(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d working cases of %s\n", len(paths), b.Name)
			return err
		},
	}
	baseCaseFlag(cmd, &base)
	return cmd
}

func newTimesCmd(a *app) *cobra.Command {
	var (
		follow bool
		until  float64
	)
	cmd := &cobra.Command{
		Use:   "times <case-dir>",
		Short: "List the snapshot times of a case in numeric order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !follow {
				times, err := snapshot.ListTimes(args[0])
				if err != nil {
					return err
				}
				a.log.WithField("case", args[0]).Debugf("%d snapshots", len(times))
				for _, t := range times {
					if _, err := fmt.Fprintln(out, t); err != nil {
						return err
					}
				}
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			bounded := cmd.Flags().Changed("until")
			var writeErr error
			err := snapshot.Follow(ctx, args[0], func(t string) bool {
				if _, writeErr = fmt.Fprintln(out, t); writeErr != nil {
					return false
				}
				v, _ := snapshot.ParseTime(t)
				return !bounded || v < until-solver.Epsilon
			})
			if err != nil {
				return err
			}
			return writeErr
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep printing snapshots as they are written")
	cmd.Flags().Float64Var(&until, "until", 0, "with --follow, stop once a snapshot at or past this time appears")
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "archive <root> <case> <time>",
		Short: "Store one snapshot of a working case in the configured archive",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			arch, err := a.openArchiver(ctx)
			if err != nil {
				return err
			}
			b, err := a.baseCase(args[0], a.baseName(base), nil)
			if err != nil {
				return err
			}
			info, err := b.Vector(args[1], args[2]).Archive(ctx, arch)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", info.Key, info.Size, info.ETag)
			return err
		},
	}
	baseCaseFlag(cmd, &base)
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var base, name string
	cmd := &cobra.Command{
		Use:   "restore <root> <key>",
		Short: "Restore an archived snapshot into a working case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			arch, err := a.openArchiver(ctx)
			if err != nil {
				return err
			}
			cat, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := cat.Close(); cerr != nil {
					err = multierror.Append(err, cerr).ErrorOrNil()
				}
			}()
			b, err := a.baseCase(args[0], a.baseName(base), cat)
			if err != nil {
				return err
			}
			v, err := b.RestoreVector(ctx, arch, args[1], name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v.String())
			return err
		},
	}
	baseCaseFlag(cmd, &base)
	cmd.Flags().StringVar(&name, "name", "", "working case to restore into (fresh id when empty)")
	return cmd
}

func newLineageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <case> <time>",
		Short: "Print the recorded ancestry of a snapshot, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			cat, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := cat.Close(); cerr != nil {
					err = multierror.Append(err, cerr).ErrorOrNil()
				}
			}()
			entries, err := catalog.Lineage(ctx, cat, args[0], args[1])
			if err != nil {
				return fmt.Errorf("lineage of %s: %w", catalog.Ref(args[0], args[1]), err)
			}
			for _, e := range entries {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", e.Ref(), e.Operation, strings.Join(e.Parents, ",")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
