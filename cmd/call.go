package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/call"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/config"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/media"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/signaling"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/transport"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/ui"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/utils"
)

var (
	flagRole      string
	flagUserID    string
	flagUserName  string
	flagVideoFile string
	flagAudioFile string
	flagAllow     bool
)

var callCmd = &cobra.Command{
	Use:     "call <room-id>",
	Aliases: []string{"c"},
	Short:   "Join a consultation room",
	Long: `Join a room as the doctor or the patient. The doctor starts the
negotiation; the patient answers it. Both must use the same room id.

Keys: m mute/unmute, v camera on/off, r retry after a failure, q end call.

Examples:
  teleconsult call calm-cedar-heron-cove --role doctor --user-id d-42 --user-name "Dr. Rao"
  teleconsult call calm-cedar-heron-cove --role patient --user-id p-7
  teleconsult call ROOM --role doctor --user-id d-42 --video-file clip.ivf --audio-file voice.ogg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, args[0])
	},
}

func runCall(cmd *cobra.Command, roomID string) error {
	if _, ok := protocol.RoomFromTopic(protocol.Topic(roomID)); !ok {
		return fmt.Errorf("invalid room id %q", roomID)
	}

	var role protocol.Role
	if flagRole != "" {
		r, err := protocol.ParseRole(flagRole)
		if err != nil {
			return err
		}
		role = r
	}
	userName := flagUserName
	if userName == "" {
		userName = utils.Capitalize(string(role))
	}

	cfg, err := config.Load(configOptions())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	logger := slog.Default().With("room", roomID)

	var prompt *ui.ConsentPrompt
	consent := media.AllowAll
	if !flagAllow {
		prompt = ui.NewConsentPrompt()
		consent = prompt.Ask
	}

	hostname, _ := os.Hostname()
	device := media.NewDevice(media.DeviceOptions{
		Name:          hostname,
		HasMicrophone: true,
		HasCamera:     true,
		VideoFile:     flagVideoFile,
		AudioFile:     flagAudioFile,
		Consent:       consent,
		Logger:        logger,
	})

	channel := signaling.NewChannel(signaling.Options{URL: cfg.RelayURL, Logger: logger})

	params := call.Params{RoomID: roomID, Role: role, UserID: flagUserID, UserName: userName}
	session, err := call.New(params, call.Deps{
		Relay:       channel,
		Media:       device,
		NewPeer:     call.TransportFactory(transport.OptionsFromConfig(cfg, logger)),
		Constraints: media.DefaultConstraints(cfg.SecureContext()),
		DeviceName:  "teleconsult-cli on " + hostname,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer session.End()

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	if err := channel.Connect(cmd.Context()); err != nil {
		sp.Error(call.CauseRelay.Message())
		return err
	}
	defer channel.Disconnect()
	sp.Success("Connected to " + cfg.RelayURL)

	session.Start(cmd.Context())

	local := protocol.Participant{ID: params.UserID, DisplayName: params.UserName, Role: params.Role}
	if err := ui.RunCallScreen(session, prompt, roomID, local); err != nil {
		return fmt.Errorf("call screen: %w", err)
	}
	session.End()

	fmt.Println()
	ui.RenderCallSummary(ui.CallSummary{RoomID: roomID, Local: local, Status: session.Status()})
	return nil
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&flagRole, "role", "", "Your role: doctor or patient")
	callCmd.Flags().StringVar(&flagUserID, "user-id", "", "Your participant id")
	callCmd.Flags().StringVar(&flagUserName, "user-name", "", "Display name (default the capitalised role)")
	callCmd.Flags().StringVar(&flagVideoFile, "video-file", "", "IVF/VP8 file to loop as the camera")
	callCmd.Flags().StringVar(&flagAudioFile, "audio-file", "", "Ogg/Opus file to loop as the microphone")
	callCmd.Flags().BoolVarP(&flagAllow, "yes", "y", false, "Allow camera and microphone without asking")
}
