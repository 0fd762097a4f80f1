package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/companion"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/replay"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to companion.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	assistantID := flag.String("assistant", "deskmate", "assistant whose room is used in DB mode")
	persona := flag.String("persona", "", "persona name to replay in DB mode (default: every message)")
	last := flag.Int("last", 50, "replay the N most recent stored messages in DB mode")
	jsonOut := flag.Bool("json", false, "output results as JSON")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/companion.db [--assistant id] [--persona name] [--last N]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, *jsonOut)
	} else {
		exitCode = runDBMode(*dbPath, *assistantID, *persona, *last, *jsonOut)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-extract

// runDBMode replays stored user messages and checks each decision's mood against the
// mood recorded with the assistant reply that followed it.
func runDBMode(dbPath, assistantID, personaName string, last int, jsonOut bool) int {
	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	plans, err := floorplan.NewStore(store.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open floor plans: %v\n", err)
		return 2
	}
	convo, err := memory.NewStore(store.DB(), memory.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open memory: %v\n", err)
		return 2
	}

	ctx := context.Background()
	msgs, err := convo.Recent(ctx, personaName, last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read messages: %v\n", err)
		return 2
	}
	interactions, expectations := toInteractions(msgs)
	if len(interactions) == 0 {
		fmt.Fprintln(os.Stderr, "no user messages found")
		return 2
	}

	asst, room := companion.New(companion.Config{Assistants: store, Plans: plans}).Snapshot(assistantID)
	var p *council.Persona
	if personaName != "" {
		p = &council.Persona{Name: personaName}
	}
	results, final := replay.Replay(ctx, asst, room, p, interactions, expectations)
	return report(results, final, jsonOut)
}

// toInteractions pairs each user message with the mood stored on the reply after it.
func toInteractions(msgs []memory.Message) ([]replay.Interaction, map[string]replay.Expectation) {
	var out []replay.Interaction
	expectations := make(map[string]replay.Expectation)
	for i, m := range msgs {
		if m.Role != "user" {
			continue
		}
		turnID := m.ID
		if len(turnID) > 8 {
			turnID = turnID[:8]
		}
		out = append(out, replay.Interaction{TurnID: turnID, Message: m.Content})
		if i+1 < len(msgs) && msgs[i+1].Role == "assistant" {
			if mood, ok := msgs[i+1].Metadata["mood"].(string); ok && mood != "" {
				expectations[turnID] = replay.Expectation{Mood: mood}
			}
		}
	}
	return out, expectations
}

// #endregion db-extract

// #region output

func runFixtureMode(path string, jsonOut bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	asst, room, err := f.Scene()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build scene: %v\n", err)
		return 2
	}

	interactions := make([]replay.Interaction, len(f.Interactions))
	for i := range f.Interactions {
		interactions[i] = f.Interactions[i].ToInteraction()
	}

	results, final := replay.Replay(context.Background(), asst, room, f.Persona, interactions, f.Expectations())
	return report(results, final, jsonOut)
}

type jsonReport struct {
	Results []replay.ReplayResult `json:"results"`
	Summary replay.ReplaySummary  `json:"summary"`
}

// report prints the per-turn table and summary and returns the exit code.
func report(results []replay.ReplayResult, final council.AssistantSnapshot, jsonOut bool) int {
	summary := replay.Summarize(results, final)
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(jsonReport{Results: results, Summary: summary}); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			return 2
		}
	} else {
		fmt.Printf("%-10s| %-20s| %-10s| %5s | %-9s| %s\n", "Turn", "Intent", "Mood", "Conf", "Result", "Reason")
		fmt.Printf("%-10s+%-21s+%-11s+%7s+%-10s+%s\n",
			"----------", "---------------------", "-----------", "-------", "----------", "------")
		for _, r := range results {
			fmt.Printf("%-10s| %-20s| %-10s| %5.2f | %-9s| %s\n",
				r.TurnID, r.PrimaryIntent, r.Decision.Mood, r.Decision.Confidence, r.Action, r.Reason)
		}
		fmt.Printf("\nSummary: %d total, %d pass, %d fail, %d unchecked, mean confidence %.2f\n",
			summary.TotalTurns, summary.Passed, summary.Failed, summary.Unchecked, summary.MeanConfidence)
	}

	if summary.Failed > 0 {
		return 1
	}
	return 0
}

// #endregion output
