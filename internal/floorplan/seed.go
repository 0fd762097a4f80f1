package floorplan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region load-file

// LoadLayoutFile reads a YAML floor-plan layout. Records inherit the plan id
// when they leave floor_plan_id empty.
func LoadLayoutFile(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes a YAML layout document.
func ParseLayout(data []byte) (Layout, error) {
	var layout Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	if layout.Plan.ID == "" {
		return Layout{}, fmt.Errorf("parse layout: floor_plan.id is required")
	}
	planID := layout.Plan.ID
	for i := range layout.Rooms {
		if layout.Rooms[i].FloorPlanID == "" {
			layout.Rooms[i].FloorPlanID = planID
		}
	}
	for i := range layout.Walls {
		if layout.Walls[i].FloorPlanID == "" {
			layout.Walls[i].FloorPlanID = planID
		}
	}
	for i := range layout.Doorways {
		d := &layout.Doorways[i]
		if d.FloorPlanID == "" {
			d.FloorPlanID = planID
		}
		if d.DoorState == "" {
			d.DoorState = DoorOpen
		}
	}
	for i := range layout.Furniture {
		if layout.Furniture[i].FloorPlanID == "" {
			layout.Furniture[i].FloorPlanID = planID
		}
	}
	return layout, nil
}

// #endregion load-file
