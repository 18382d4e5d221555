package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"sweep-bench/internal/config"
	"sweep-bench/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err != nil {
		// Fall back to the application directory
		execPath, err := os.Executable()
		if err != nil {
			return
		}
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err != nil {
			return
		}
	}
	if err := godotenv.Load(envFile); err != nil {
		logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
	} else {
		logger.WithField("file", envFile).Debug("Loaded environment variables")
	}
}

// source selects a sweep either from a file or from the built-in profiles.
type source struct {
	configFile string
	profile    string
}

func (s *source) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.configFile, "config", "c", "", "Path to sweep configuration file")
	cmd.Flags().StringVarP(&s.profile, "profile", "p", "", "Name of a built-in sweep profile")
	cmd.MarkFlagsMutuallyExclusive("config", "profile")
	cmd.MarkFlagsOneRequired("config", "profile")
}

func (s *source) load() (*config.SweepConfig, string, error) {
	if s.profile != "" {
		return config.LoadProfile(s.profile)
	}
	return config.LoadConfigWithContent(s.configFile)
}

func (s *source) String() string {
	if s.profile != "" {
		return "profile:" + s.profile
	}
	return s.configFile
}

func Execute() error {
	loadEnvironment()
	return newRootCmd(os.Stdout).Execute()
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "sweep-bench",
		Short:         "Parameter sweep benchmark driver",
		Long:          "Runs an external benchmark binary over the cartesian product of configured parameters and reports one line of results per point",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	var runSrc source
	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.logLevelSet = logLevel != ""
			return runSweep(cmd.Context(), &runSrc, opts, cmd.OutOrStdout())
		},
	}
	runSrc.register(runCmd)
	runCmd.Flags().StringVar(&opts.format, "format", "", "Output format (text, json, xlsx)")
	runCmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write results to a file instead of stdout")
	runCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9101")
	runCmd.Flags().StringVar(&opts.spoolDir, "spool-dir", "", "Write a compressed run artifact to this directory")
	runCmd.Flags().BoolVar(&opts.labels, "labels", false, "Prefix each text result line with the point's values")

	var validateSrc source
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a sweep configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateSweep(&validateSrc, cmd.OutOrStdout())
		},
	}
	validateSrc.register(validateCmd)

	var pointsSrc source
	pointsCmd := &cobra.Command{
		Use:   "points",
		Short: "List the configuration points of a sweep in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPoints(&pointsSrc, cmd.OutOrStdout())
		},
	}
	pointsSrc.register(pointsCmd)

	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in sweep profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProfiles(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(pointsCmd)
	rootCmd.AddCommand(profilesCmd)

	return rootCmd
}

func validateSweep(src *source, out io.Writer) error {
	logger := logging.GetLogger()

	cfg, _, err := src.load()
	if err != nil {
		logger.WithField("config", src.String()).WithError(err).Error("Configuration validation failed")
		return err
	}
	spec, err := cfg.Spec()
	if err != nil {
		return err
	}
	checksum, err := config.SweepChecksum(cfg)
	if err != nil {
		return err
	}

	logger.WithField("config", src.String()).Info("Configuration is valid")
	fmt.Fprintf(out, "%s: %d points x %d repetitions, checksum %s\n", cfg.Benchmark.Name, spec.Size(), spec.Repetitions(), checksum)
	return nil
}

func listPoints(src *source, out io.Writer) error {
	cfg, _, err := src.load()
	if err != nil {
		return err
	}
	spec, err := cfg.Spec()
	if err != nil {
		return err
	}
	for _, p := range spec.Points() {
		fmt.Fprintf(out, "%d\t%s\n", p.Index(), p)
	}
	return nil
}

func listProfiles(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range config.ProfileNames() {
		cfg, _, err := config.LoadProfile(name)
		if err != nil {
			return err
		}
		spec, err := cfg.Spec()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d points\t%s\n", name, spec.Size(), cfg.Benchmark.Description)
	}
	return w.Flush()
}
