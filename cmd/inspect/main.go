package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/companion"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to companion.db")
	assistant := flag.String("assistant", "", "show one assistant in detail (default: list all)")
	last := flag.Int("last", 20, "show N most recent actions")
	actionType := flag.String("type", "", "filter the action log to one action type")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	councilMsg := flag.String("council", "", "run the council reasoners on this message and print each result")
	persona := flag.String("persona", "", "persona name for --council")
	showPrompt := flag.Bool("prompt", false, "with --council, also print the LLM prompt")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/companion.db [--assistant id] [--last N] [--type move] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --db path/to/companion.db --council \"message\" [--assistant id] [--persona name] [--prompt]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := logging.EnsureSchema(store.DB()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *councilMsg != "":
		id := *assistant
		if id == "" {
			id = "deskmate"
		}
		err = runCouncilMode(store, id, *councilMsg, *persona, *showPrompt, *jsonOut)
	case *assistant != "":
		err = runDetailMode(store, *assistant, *last, *actionType, *jsonOut)
	default:
		err = runListMode(store, *last, *actionType, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listOutput struct {
	Assistants []state.Assistant     `json:"assistants"`
	Actions    []logging.ActionEntry `json:"actions"`
}

func runListMode(store *state.Store, last int, actionType string, jsonOut bool) error {
	all, err := store.List()
	if err != nil {
		return err
	}
	actions, err := recentActions(store, "", last, actionType)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(listOutput{Assistants: all, Actions: actions})
	}
	if len(all) == 0 {
		fmt.Fprintln(os.Stderr, "no assistants found")
		return nil
	}

	fmt.Printf("%-12s  %-14s  %-16s  %-9s  %-10s  %6s  %s\n",
		"Assistant", "Room", "Position", "Action", "Mood", "Energy", "Holding")
	fmt.Printf("%-12s+-%-14s+-%-16s+-%-9s+-%-10s+-%6s+-%s\n",
		"------------", "--------------", "----------------", "---------", "----------", "------", "----------")
	for _, a := range all {
		fmt.Printf("%-12s  %-14s  %-16s  %-9s  %-10s  %6.2f  %s\n",
			a.ID, orDash(a.CurrentRoomID), position(a), a.CurrentAction, a.Mood, a.Energy, orDash(a.HeldObjectID))
	}
	fmt.Println()
	printActions(actions)
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Assistant state.Assistant       `json:"assistant"`
	Actions   []logging.ActionEntry `json:"actions"`
}

func runDetailMode(store *state.Store, id string, last int, actionType string, jsonOut bool) error {
	a, err := store.Get(id)
	if err != nil {
		return err
	}
	actions, err := recentActions(store, id, last, actionType)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(detailOutput{Assistant: a, Actions: actions})
	}

	fmt.Printf("Assistant:  %s\n", a.ID)
	fmt.Printf("Floor plan: %s\n", orDash(a.FloorPlanID))
	fmt.Printf("Room:       %s\n", orDash(a.CurrentRoomID))
	fmt.Printf("Position:   %s facing %s\n", position(a), a.Facing)
	fmt.Printf("Action:     %s\n", a.CurrentAction)
	fmt.Printf("Mood:       %s (%s)\n", a.Mood, a.Expression)
	fmt.Printf("Energy:     %.2f\n", a.Energy)
	fmt.Printf("Holding:    %s\n", orDash(a.HeldObjectID))
	if a.IsMoving() {
		fmt.Printf("Moving to:  (%.0f, %.0f) via %d waypoints\n", a.MovementTarget.X, a.MovementTarget.Y, len(a.MovementPath))
	}
	fmt.Printf("Updated:    %s\n\n", a.UpdatedAt.Format("2006-01-02T15:04:05Z"))
	printActions(actions)
	return nil
}

// #endregion detail-mode

// #region council-mode

type councilOutput struct {
	Assistant council.AssistantSnapshot `json:"assistant"`
	Room      council.RoomSnapshot      `json:"room"`
	Results   []council.Result          `json:"results"`
	Prompt    string                    `json:"prompt,omitempty"`
}

// councilReport runs every reasoner on msg against the stored assistant and active plan.
func councilReport(ctx context.Context, store *state.Store, id, msg, personaName string, withPrompt bool) (councilOutput, error) {
	plans, err := floorplan.NewStore(store.DB())
	if err != nil {
		return councilOutput{}, err
	}
	convo, err := memory.NewStore(store.DB(), memory.DefaultOptions())
	if err != nil {
		return councilOutput{}, err
	}

	asst, room := companion.New(companion.Config{Assistants: store, Plans: plans}).Snapshot(id)
	var p *council.Persona
	if personaName != "" {
		p = &council.Persona{Name: personaName}
	}
	coord := council.NewCoordinator(council.CoordinatorConfig{Memory: convo})

	out := councilOutput{Assistant: asst, Room: room, Results: coord.Results(ctx, msg, asst, room, p)}
	if withPrompt {
		out.Prompt = coord.Prompt(ctx, msg, asst, room, p)
	}
	return out, nil
}

func runCouncilMode(store *state.Store, id, msg, personaName string, withPrompt, jsonOut bool) error {
	out, err := councilReport(context.Background(), store, id, msg, personaName, withPrompt)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Message: %q\n", msg)
	fmt.Printf("Assistant %s in %s at (%.0f, %.0f), mood %s\n\n",
		out.Assistant.ID, orDash(out.Room.ID), out.Assistant.Position.X, out.Assistant.Position.Y, out.Assistant.Mood)
	fmt.Printf("%-14s  %5s  %9s  %s\n", "Reasoner", "Conf", "Took", "Reasoning")
	fmt.Printf("%-14s+-%5s+-%9s+-%s\n", "--------------", "-----", "---------", "----------")
	for _, r := range out.Results {
		text := r.Reasoning
		if r.Error != "" {
			text = "ERROR: " + r.Error
		}
		fmt.Printf("%-14s  %5.2f  %9s  %s\n", r.ReasonerName, r.Confidence, r.Duration.Round(time.Microsecond), truncate(text, 100))
	}
	if withPrompt {
		fmt.Printf("\n--- prompt ---\n%s\n", out.Prompt)
	}
	return nil
}

// #endregion council-mode

// #region helpers

// recentActions returns up to last entries in chronological order.
func recentActions(store *state.Store, assistantID string, last int, actionType string) ([]logging.ActionEntry, error) {
	limit := last
	if actionType != "" {
		// Over-fetch so filtering still leaves enough rows.
		limit = last * 10
	}
	entries, err := logging.RecentActions(store.DB(), assistantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]logging.ActionEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if actionType != "" && entries[i].ActionType != actionType {
			continue
		}
		out = append(out, entries[i])
	}
	if len(out) > last {
		out = out[len(out)-last:]
	}
	return out, nil
}

func printActions(entries []logging.ActionEntry) {
	if len(entries) == 0 {
		fmt.Println("no actions logged")
		return
	}
	fmt.Printf("%-20s  %-12s  %-22s  %-18s  %-7s  %s\n", "Time", "Assistant", "Action", "Target", "Status", "Reason")
	fmt.Printf("%-20s+-%-12s+-%-22s+-%-18s+-%-7s+-%s\n",
		"--------------------", "------------", "----------------------", "------------------", "-------", "----------")
	for _, e := range entries {
		fmt.Printf("%-20s  %-12s  %-22s  %-18s  %-7s  %s\n",
			e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.AssistantID, e.ActionType, truncate(orDash(e.Target), 18), e.Status, e.Reason)
	}
}

func position(a state.Assistant) string {
	return fmt.Sprintf("(%.0f, %.0f)", a.Position.X, a.Position.Y)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
