package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/replay"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to companion.db")
	assistantID := flag.String("assistant", "deskmate", "assistant to export")
	persona := flag.String("persona", "", "only export messages for this persona")
	last := flag.Int("last", 8, "number of most recent messages to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--assistant id] [--persona name] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *assistantID, *persona, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, assistantID, personaName string, last int, outPath string) error {
	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	asst, err := store.Get(assistantID)
	if err != nil {
		return err
	}
	plans, err := floorplan.NewStore(store.DB())
	if err != nil {
		return fmt.Errorf("open floor plans: %w", err)
	}
	plan, err := plans.ActivePlan()
	if err != nil {
		return fmt.Errorf("active floor plan: %w", err)
	}
	layout, err := plans.Layout(plan.ID)
	if err != nil {
		return err
	}

	convo, err := memory.NewStore(store.DB(), memory.DefaultOptions())
	if err != nil {
		return fmt.Errorf("open memory: %w", err)
	}
	msgs, err := convo.Recent(context.Background(), personaName, last)
	if err != nil {
		return fmt.Errorf("read messages: %w", err)
	}

	fixture := buildFixture(asst, msgs)
	if len(fixture.Interactions) == 0 {
		return fmt.Errorf("no user messages found in last %d entries", last)
	}
	if personaName != "" {
		fixture.Persona = &council.Persona{Name: personaName}
	}
	fmt.Printf("Found %d user turns\n", len(fixture.Interactions))

	layoutPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".layout.yaml"
	fixture.Layout = filepath.Base(layoutPath)
	if err := writeLayout(layout, layoutPath); err != nil {
		return err
	}
	return writeFixture(fixture, outPath)
}

// #endregion extract

// #region output

// buildFixture starts the fixture from the assistant's current placement. Each user
// message becomes a turn and the reply stored after it supplies the expected mood
// and intent.
func buildFixture(asst state.Assistant, msgs []memory.Message) replay.Fixture {
	energy := asst.Energy
	fixture := replay.Fixture{
		Description: fmt.Sprintf("Session export for %s: %d stored messages", asst.ID, len(msgs)),
		Start: replay.FixtureStart{
			AssistantID: asst.ID,
			RoomID:      asst.CurrentRoomID,
			X:           asst.Position.X,
			Y:           asst.Position.Y,
			Mood:        asst.Mood,
			Energy:      &energy,
			Holding:     asst.HeldObjectID,
		},
	}

	for i, m := range msgs {
		if m.Role != "user" {
			continue
		}
		turnID := fmt.Sprintf("t%d", len(fixture.Interactions)+1)
		fixture.Interactions = append(fixture.Interactions, replay.FixtureInteraction{TurnID: turnID, Message: m.Content})
		if i+1 >= len(msgs) || msgs[i+1].Role != "assistant" {
			continue
		}
		meta := msgs[i+1].Metadata
		exp := replay.FixtureExpectedResult{TurnID: turnID}
		exp.Mood, _ = meta["mood"].(string)
		exp.PrimaryIntent, _ = meta["primary_intent"].(string)
		if exp.Mood != "" || exp.PrimaryIntent != "" {
			fixture.ExpectedResults = append(fixture.ExpectedResults, exp)
		}
	}
	return fixture
}

func writeLayout(layout floorplan.Layout, path string) error {
	data, err := yaml.Marshal(layout)
	if err != nil {
		return fmt.Errorf("marshal layout: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("Wrote layout to %s (%d rooms, %d furniture)\n", path, len(layout.Rooms), len(layout.Furniture))
	return nil
}

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d interactions)\n", outPath, len(data), len(fixture.Interactions))
	return nil
}

// #endregion output
