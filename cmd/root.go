package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/config"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/ui"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "teleconsult",
	Short: "Doctor and patient video consultations over WebRTC",
	Long: `Teleconsult connects a doctor and a patient in a live audio/video call.
Both sides join the same room id through a signaling relay; the doctor offers,
the patient answers, and media then flows directly between them over WebRTC.`,
	Version: version.Version,
}

// Flags shared by every command that reads configuration.
var (
	flagConfig     string
	flagDomain     string
	flagRelayURL   string
	flagSTUN       []string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagForceRelay bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file (default $XDG_CONFIG_HOME/teleconsult/config.yaml)")
	pf.StringVarP(&flagDomain, "domain", "d", "", "Relay domain")
	pf.StringVar(&flagRelayURL, "relay-url", "", "Relay WebSocket URL (default derived from --domain)")
	pf.StringSliceVarP(&flagSTUN, "stun", "s", nil, "STUN server (repeatable)")
	pf.StringVarP(&flagTURN, "turn", "t", "", "TURN server")
	pf.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	pf.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	pf.BoolVar(&flagForceRelay, "force-relay", false, "Only use TURN relay candidates")
}

// configOptions collects the shared flags.
func configOptions() config.Options {
	return config.Options{
		ConfigFile:  flagConfig,
		Domain:      flagDomain,
		RelayURL:    flagRelayURL,
		STUNServers: flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagForceRelay,
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
