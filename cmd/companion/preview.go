package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
)

var (
	previewX, previewY float64
	previewRoom        string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the route to a target without moving the assistant",
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().Float64Var(&previewX, "x", 0, "Target x")
	previewCmd.Flags().Float64Var(&previewY, "y", 0, "Target y")
	previewCmd.Flags().StringVar(&previewRoom, "room", "", "Target room id (default: current room)")
}

func runPreview(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.nav.PreviewPath(cmd.Context(), navigation.Request{
		AssistantID:  assistantID,
		Target:       geometry.Position{X: previewX, Y: previewY},
		TargetRoomID: previewRoom,
	})
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return encErr
	}
	return err
}
