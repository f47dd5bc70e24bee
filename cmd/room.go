package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/ui"
)

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Create a new room id",
	Long: `Print a fresh, memorable room id and the commands the doctor and the
patient run to join it.

Examples:
  teleconsult room`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ui.RenderRoomInfo(protocol.NewRoomID())
	},
}

func init() {
	rootCmd.AddCommand(roomCmd)
}
