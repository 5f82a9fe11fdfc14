package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/vs-ude/fyrbuild/internal/driver"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

func newRootCommand() *cobra.Command {
	flags := &commonFlags{}
	cmd := &cobra.Command{
		Use:           "fyrbuild",
		Short:         "Ahead-of-time code generation driver for partitioned Fyr programs",
		Version:       fmt.Sprintf("%v (built %v)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.setupLogging()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	flags.register(cmd)
	cmd.AddCommand(
		newBuildCommand(flags),
		newEnvCommand(flags),
		newBackendConfigCommand(flags),
	)
	return cmd
}

func newBuildCommand(flags *commonFlags) *cobra.Command {
	bf := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build <manifest.yaml>",
		Short: "Compiles every codegen unit of a program manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := mono.LoadProgram(args[0])
			if err != nil {
				return err
			}
			stem := bf.stem
			if stem == "" {
				stem = p.CrateName
			}
			sess, err := session.New(cfg, stem)
			if err != nil {
				return err
			}
			registry := prometheus.NewRegistry()
			sess.Metrics.MustRegister(registry)
			b, err := setupBackend(cfg)
			if err != nil {
				return err
			}
			glog.V(1).Infof("Session %v: %v units of %v with the %v backend", sess.ID, len(p.Units), p.CrateName, b.Name())

			results, err := driver.Compile(cmd.Context(), sess, b, p, nil)
			printDiagnostics(cmd.ErrOrStderr(), sess.Log)
			if err != nil {
				return err
			}
			if bf.metricsFile != "" {
				if err := writeMetrics(bf.metricsFile, registry); err != nil {
					return err
				}
			}
			for _, m := range results.Modules {
				glog.V(2).Infof("%v: %v", m.Name, m.Object)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	bf.register(cmd)
	return cmd
}

func newEnvCommand(flags *commonFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Prints the environment and configuration used by the compiler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.PrintConf(cmd.OutOrStdout())
			return nil
		},
	}
}

func newBackendConfigCommand(flags *commonFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "backend-config",
		Short: "Prints the selected configuration of the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := setupBackend(cfg)
			if err != nil {
				return err
			}
			if p, ok := b.(configPrinter); ok {
				p.PrintCurrentConfig(cmd.OutOrStdout())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "The %v backend has no configuration\n", b.Name())
			return nil
		},
	}
}

// writeMetrics dumps the gathered metrics in the Prometheus text format.
func writeMetrics(path string, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return errors.Wrapf(err, "writing metrics to %v", path)
		}
	}
	return f.Close()
}

func usedBackends() string {
	return strings.Join([]string{"obj", "c99", "spirv"}, ", ")
}

