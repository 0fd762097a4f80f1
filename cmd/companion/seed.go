package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
)

var seedReset bool

var seedCmd = &cobra.Command{
	Use:   "seed [layout.yaml]",
	Short: "Load a floor plan layout and place the assistant in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "Move an existing assistant to the new plan's center")
}

func runSeed(_ *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	assistants, plans, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer assistants.Close()

	layout, err := floorplan.LoadLayoutFile(args[0])
	if err != nil {
		return err
	}
	layout.Plan.Active = true
	if err := plans.SaveLayout(layout); err != nil {
		return err
	}
	if err := plans.Activate(layout.Plan.ID); err != nil {
		return fmt.Errorf("activate %s: %w", layout.Plan.ID, err)
	}

	if seedReset {
		if err := assistants.Save(placeAssistant(assistantID, layout)); err != nil {
			return err
		}
	} else if err := ensureAssistant(assistants, plans, assistantID); err != nil {
		return err
	}

	a, err := assistants.Get(assistantID)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded plan %s (%d rooms, %d doorways, %d items); %s at (%.0f, %.0f) in %s\n",
		layout.Plan.ID, len(layout.Rooms), len(layout.Doorways), len(layout.Furniture),
		a.ID, a.Position.X, a.Position.Y, a.CurrentRoomID)
	return nil
}
