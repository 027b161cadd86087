package main

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/gaissmai/bart"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ipmatch/ipset"
	"github.com/ipmatch/ipset/util/cidr"
	iputil "github.com/ipmatch/ipset/util/ip"
)

var (
	cfgFile           string
	logLevel          string
	envPrefix         = "IPSET"
	defaultConfigName = ".ipset"
	opts              options
	v                 = viper.New()

	errMiss = errors.New("some addresses did not match")
)

type options struct {
	CIDRs      []string
	Output     string
	Explain    bool
	FailOnMiss bool
	Ranges     bool
}

// rootCmd represents the root command
var rootCmd = &cobra.Command{
	Use:          "ipset",
	Short:        "Test addresses against a set of CIDR blocks",
	SilenceUsage: true,
}

var matchCmd = &cobra.Command{
	Use:   "match ADDRESS...",
	Short: "Report whether each address belongs to the configured set",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		allMatched, err := runMatch(cmd.OutOrStdout(), loadCIDRs(), args, opts)
		if err != nil {
			return err
		}
		if opts.FailOnMiss && !allMatched {
			return errMiss
		}
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the compiled tries of the configured set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDump(cmd.OutOrStdout(), loadCIDRs(), opts.Ranges)
	},
}

// initConfig use config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		// Search config in home directory with name ".ipset" (without extension).
		v.AddConfigPath(home)
		v.SetConfigName(defaultConfigName)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfgErr := v.ReadInConfig()

	bindFlags(rootCmd, v)
	initLogger()

	if cfgErr != nil && cfgFile != "" {
		log.Errorf("Read config error: %v", cfgErr)
	}
}

func initLogger() {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		ll = log.ErrorLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

// bindFlags applies config values to flags that were not set on the command
// line.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	visit := func(f *pflag.Flag) {
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))
		}
		if !f.Changed && v.IsSet(f.Name) {
			_ = f.Value.Set(fmt.Sprintf("%v", v.Get(f.Name)))
		}
	}
	cmd.PersistentFlags().VisitAll(visit)
	for _, sub := range cmd.Commands() {
		sub.Flags().VisitAll(visit)
	}
}

// loadCIDRs returns the "cidrs" list from the config file or environment
// followed by the --cidr flags.
func loadCIDRs() []string {
	cidrs := append([]string{}, v.GetStringSlice("cidrs")...)
	return append(cidrs, opts.CIDRs...)
}

type matchResult struct {
	Address   string `json:"address"`
	Match     bool   `json:"match"`
	CoveredBy string `json:"covered_by,omitempty"`
}

func runMatch(w io.Writer, cidrs, addresses []string, o options) (bool, error) {
	set := ipset.New(cidrs)

	var table *bart.Table[string]
	if o.Explain {
		table = explainTable(cidrs)
	}

	allMatched := true
	results := make([]matchResult, 0, len(addresses))
	for _, address := range addresses {
		result := matchResult{Address: address, Match: set.Matches(address)}
		if result.Match && table != nil {
			if addr, err := netip.ParseAddr(address); err == nil {
				result.CoveredBy, _ = table.Lookup(addr)
			}
		}
		allMatched = allMatched && result.Match
		results = append(results, result)
	}

	switch o.Output {
	case "json":
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		if err := enc.Encode(results); err != nil {
			return false, errors.Wrap(err, "encoding results")
		}
	case "", "text":
		for _, r := range results {
			line := fmt.Sprintf("%s\t%t", r.Address, r.Match)
			if r.CoveredBy != "" {
				line += "\t" + r.CoveredBy
			}
			fmt.Fprintln(w, line)
		}
	default:
		return false, errors.Errorf("unknown output format %q", o.Output)
	}
	return allMatched, nil
}

// explainTable indexes the valid entries by prefix, so the most specific
// configured entry covering an address can be named. The compiled set
// cannot do that once entries have been absorbed. Entries spelling the same
// network are named by the first of them.
func explainTable(cidrs []string) *bart.Table[string] {
	table := new(bart.Table[string])
	for i := len(cidrs) - 1; i >= 0; i-- {
		entry, err := cidr.Parse(cidrs[i])
		if err != nil {
			continue
		}
		table.Insert(entry.Prefix(), cidrs[i])
	}
	return table
}

func runDump(w io.Writer, cidrs []string, ranges bool) error {
	set := ipset.New(cidrs)
	fmt.Fprintf(w, "entries: %d, rejected: %d, nodes: %d\n", set.Len(), len(set.Rejected()), set.NodeCount())
	for _, err := range set.Rejected() {
		fmt.Fprintf(w, "rejected: %v\n", err)
	}
	if ranges {
		for _, text := range cidrs {
			entry, err := cidr.Parse(text)
			if err != nil {
				continue
			}
			ip := net.IP(entry.Address)
			fmt.Fprintf(w, "%s\t%s\t%s\n", text, iputil.FirstIP(ip, entry.Mask), iputil.LastIP(ip, entry.Mask))
		}
	}
	fmt.Fprintln(w, set.String())
	return nil
}

func initFlags() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $HOME/%s)", defaultConfigName))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warning, error")
	rootCmd.PersistentFlags().StringSliceVar(&opts.CIDRs, "cidr", nil, "CIDR block to add to the set, may be repeated")
	matchCmd.Flags().StringVar(&opts.Output, "output", "text", "Output format: text, json")
	matchCmd.Flags().BoolVar(&opts.Explain, "explain", false, "Name the most specific configured entry covering each match")
	matchCmd.Flags().BoolVar(&opts.FailOnMiss, "fail-on-miss", false, "Exit with status 1 when any address does not match")
	dumpCmd.Flags().BoolVar(&opts.Ranges, "ranges", false, "Print the first and last address of each entry")
	rootCmd.AddCommand(matchCmd, dumpCmd)
}

func main() {
	// Initialize flags (command line parameters)
	initFlags()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errMiss) {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
