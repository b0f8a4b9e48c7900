package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DrSkyle/wastewatch/pkg/config"
	"github.com/DrSkyle/wastewatch/pkg/engine"
	"github.com/DrSkyle/wastewatch/pkg/version"
)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99")).MarginBottom(1)

var flagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

// cli carries state shared by every command of one invocation.
type cli struct {
	v        *viper.Viper
	cfgFile  string
	jsonLogs bool
	verbose  bool
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	def := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "wastewatch",
		Short: "Rule-driven cloud waste detection",
		Long: `wastewatch - Cloud Waste Detection

Measure. Classify. Price.`,
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}
	rootCmd.SetVersionTemplate(version.String() + "\n")

	// Persistent Flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "Config file (default ~/.wastewatch.yaml)")
	pf.StringSlice("region", def.Regions, "AWS regions to scan")
	pf.String("profile", "", "AWS shared config profile")
	pf.String("endpoint", "", "Override AWS endpoints (e.g. LocalStack)")
	pf.BoolVar(&c.jsonLogs, "json-logs", false, "Emit JSON logs")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	pf.Bool("mock", false, "Scan a built-in demo account instead of AWS")

	c.bind(pf, map[string]string{
		"regions":  "region",
		"profile":  "profile",
		"endpoint": "endpoint",
		"mock":     "mock",
	})

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd.OutOrStdout(), cmd)
	})

	rootCmd.AddCommand(
		newScanCmd(c),
		newRulesCmd(c),
		newHistoryCmd(c),
		newProfilesCmd(c),
		newVersionCmd(),
	)
	return rootCmd
}

// bind maps config keys to flags. An unchanged flag only supplies a default.
func (c *cli) bind(fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := c.v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind %s: %v", key, err))
		}
	}
}

func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		c.v.SetConfigFile(filepath.Join(home, ".wastewatch.yaml"))
	}
	c.v.SetConfigType("yaml")
	c.v.SetEnvPrefix("wastewatch")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		// A missing default file is fine; an explicit one must exist.
		if c.cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// loadConfig layers file, environment and flags over the defaults.
func (c *cli) loadConfig() (config.Config, error) {
	cfg := config.DefaultConfig()
	if err := c.v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *cli) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return engine.NewLogger(w, c.jsonLogs, level)
}

func renderHelp(w io.Writer, cmd *cobra.Command) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("WASTEWATCH %s", version.Current)))
	fmt.Fprintln(w, cmd.Short)

	fmt.Fprintln(w, titleStyle.Render("USAGE"))
	fmt.Fprintf(w, "  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(w, titleStyle.Render("COMMANDS"))
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				fmt.Fprintf(w, "  %-12s %s\n", sub.Name(), sub.Short)
			}
		}
		fmt.Fprintln(w)
	}

	if cmd.Example != "" {
		fmt.Fprintln(w, titleStyle.Render("EXAMPLES"))
		fmt.Fprintln(w, cmd.Example)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-18s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "[]" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Fprintln(w, flagStyle.Render(output))
	})
	fmt.Fprintln(w)
}
