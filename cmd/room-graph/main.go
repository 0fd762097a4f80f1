package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/graph"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := envOr("COMPANION_DB", "companion.db")
	layoutPath := ""
	var from, to string
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--layout":
			i++
			if i < len(args) {
				layoutPath = args[i]
			}
		case "--route":
			if i+2 < len(args) {
				from, to = args[i+1], args[i+2]
				i += 2
			}
		default:
			fmt.Fprintln(os.Stderr, "usage: room-graph [--layout plan.yaml] [--route FROM TO]")
			os.Exit(2)
		}
	}

	layout, source := loadLayout(dbPath, layoutPath)

	fmt.Println("=== Room Graph ===")
	fmt.Printf("  Plan: %s (%s) | Source: %s\n", layout.Plan.ID, layout.Plan.Name, source)
	fmt.Printf("  %d rooms, %d doorways, %d furniture\n\n", len(layout.Rooms), len(layout.Doorways), len(layout.Furniture))

	g := graph.Build(layout)
	printRooms(g)
	printDoorways(g, layout)

	if from != "" {
		fmt.Println()
		printRoute(g, from, to)
	}
}

// #endregion main

// #region load

func loadLayout(dbPath, layoutPath string) (floorplan.Layout, string) {
	if layoutPath != "" {
		layout, err := floorplan.LoadLayoutFile(layoutPath)
		if err != nil {
			log.Fatalf("load layout: %v", err)
		}
		return layout, layoutPath
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	plans, err := floorplan.NewStore(store.DB())
	if err != nil {
		log.Fatalf("failed to open floor plans: %v", err)
	}
	plan, err := plans.ActivePlan()
	if err != nil {
		log.Fatalf("active floor plan: %v", err)
	}
	layout, err := plans.Layout(plan.ID)
	if err != nil {
		log.Fatalf("load layout: %v", err)
	}
	return layout, dbPath
}

// #endregion load

// #region output

func printRooms(g *graph.RoomGraph) {
	ids := make([]string, 0, len(g.Rooms))
	for id := range g.Rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("%-16s %-10s %-22s %s\n", "ROOM", "ACCESS", "BOUNDS", "NEIGHBORS")
	fmt.Println(strings.Repeat("-", 72))
	for _, id := range ids {
		r := g.Rooms[id]
		access := "yes"
		if !r.Accessible {
			access = "no"
		}
		b := r.Bounds()
		bounds := fmt.Sprintf("%.0f,%.0f..%.0f,%.0f", b.MinX, b.MinY, b.MaxX, b.MaxY)
		neighbors := strings.Join(g.Neighbors(id), ", ")
		if neighbors == "" {
			neighbors = "(isolated)"
		}
		fmt.Printf("%-16s %-10s %-22s %s\n", id, access, bounds, neighbors)
	}
}

func printDoorways(g *graph.RoomGraph, layout floorplan.Layout) {
	if len(layout.Doorways) == 0 {
		return
	}
	fmt.Printf("\n%-22s %-28s %-12s %s\n", "DOORWAY", "CONNECTS", "DOOR", "POSITION")
	fmt.Println(strings.Repeat("-", 72))
	for _, d := range layout.Doorways {
		door := "-"
		if d.HasDoor {
			door = string(d.DoorState)
		}
		if !d.Accessible {
			door += " (blocked)"
		}
		p := g.DoorwayPositions[d.ID]
		fmt.Printf("%-22s %-28s %-12s (%.0f, %.0f)\n", d.ID, d.RoomA+" <-> "+d.RoomB, door, p.X, p.Y)
	}
}

func printRoute(g *graph.RoomGraph, from, to string) {
	route := g.Route(from, to)
	if route == nil {
		fmt.Printf("Route %s -> %s: unreachable\n", from, to)
		return
	}
	fmt.Printf("Route %s -> %s: %s\n", from, to, strings.Join(route, " -> "))
	for i := 1; i < len(route); i++ {
		if d, ok := g.DoorwayBetween(route[i-1], route[i]); ok {
			fmt.Printf("  via %s\n", d.ID)
		}
	}
}

// #endregion output

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
