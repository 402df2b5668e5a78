package cmd

import (
	"fmt"
	"os"

	v1 "github.com/buildd-tools/default-release/pkg/api/v1"
	"github.com/buildd-tools/default-release/pkg/aptlists"
	"github.com/buildd-tools/default-release/pkg/envutil"
	"github.com/buildd-tools/default-release/pkg/release"
	"github.com/djcass44/go-utils/logging"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var command = &cobra.Command{
	Use:          "default-release",
	Short:        "print the apt archive with the highest installation priority",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel, _ := cmd.Flags().GetInt(flagLogLevel)

		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.Level(logLevel * -1))

		_, ctx := logging.NewZap(cmd.Context(), zc)
		cmd.SetContext(ctx)
	},
	RunE: run,
}

const (
	flagLogLevel = "v"
	flagRoot     = "root"
	flagPackage  = "package"
	flagArch     = "arch"
	flagConfig   = "config"
)

func init() {
	command.PersistentFlags().Int(flagLogLevel, 0, "log level. Higher is more")
	command.Flags().String(flagRoot, "/", "filesystem root to inspect")
	command.Flags().String(flagPackage, "base-files", "package whose candidate version is inspected")
	command.Flags().String(flagArch, "amd64", "binary architecture of the package lists")
	command.Flags().StringP(flagConfig, "c", "", "path to an optional configuration file")

	_ = command.MarkFlagFilename(flagConfig, ".yaml", ".yml")
	_ = command.MarkFlagDirname(flagRoot)
}

func Execute(version string) {
	command.Version = version
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	root, _ := cmd.Flags().GetString(flagRoot)
	pkgName, _ := cmd.Flags().GetString(flagPackage)
	arch, _ := cmd.Flags().GetString(flagArch)
	configPath, _ := cmd.Flags().GetString(flagConfig)

	root = envutil.Expand(root)
	archives := release.DefaultArchives
	if configPath = envutil.Expand(configPath); configPath != "" {
		cfg, err := readConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Spec.Package != "" {
			pkgName = cfg.Spec.Package
		}
		if len(cfg.Spec.Archives) > 0 {
			archives = cfg.Spec.Archives
		}
		if cfg.Spec.Architecture != "" {
			arch = cfg.Spec.Architecture
		}
	}
	log.V(1).Info("inspecting apt state", "root", root, "package", pkgName, "arch", arch)

	sys, err := aptlists.Open(cmd.Context(), aptlists.Options{
		Root: root,
		Arch: arch,
	})
	if err != nil {
		return err
	}

	archive, err := release.Scan(cmd.Context(), sys, sys, sys, pkgName, archives)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), archive)
	return nil
}

func readConfig(s string) (v1.DefaultRelease, error) {
	f, err := os.Open(s)
	if err != nil {
		return v1.DefaultRelease{}, err
	}

	var config v1.DefaultRelease
	if err := yaml.NewYAMLOrJSONDecoder(f, 4).Decode(&config); err != nil {
		return v1.DefaultRelease{}, err
	}
	return config, nil
}
