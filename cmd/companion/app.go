package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/actions"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/companion"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/config"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/floorplan"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/idle"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/llm"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/memory"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/pathfinding"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/state"
)

// #region app

// app holds every wired component for one process.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	assistants *state.Store
	plans      *floorplan.Store
	hub        *notify.Hub
	redis      *notify.RedisPublisher
	nav        *navigation.Navigator
	service    *companion.Service
	idle       *idle.Controller
	persona    *council.Persona
	closers    []func() error
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

// openStores opens the database and the stores every command needs.
func openStores(cfg *config.Config) (*state.Store, *floorplan.Store, error) {
	assistants, err := state.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	plans, err := floorplan.NewStore(assistants.DB())
	if err != nil {
		assistants.Close()
		return nil, nil, fmt.Errorf("open floor plans: %w", err)
	}
	if err := logging.EnsureSchema(assistants.DB()); err != nil {
		assistants.Close()
		return nil, nil, err
	}
	return assistants, plans, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	assistants, plans, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, assistants: assistants, plans: plans, closers: []func() error{assistants.Close}}

	if err := ensureAssistant(assistants, plans, assistantID); err != nil {
		log.Warn("assistant not seeded", zap.String("assistant", assistantID), zap.Error(err))
	}
	if a.persona, err = loadPersona(personaPath); err != nil {
		a.Close()
		return nil, err
	}

	convo, err := memory.NewStore(assistants.DB(), memory.Options{
		RecentContextSize: cfg.Memory.RecentContextSize,
		RetrievedLimit:    cfg.Memory.RetrievedLimit,
		Logger:            log,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open memory: %w", err)
	}

	// With Redis up, events reach the local hub only through the channel
	// (see forwardEvents), so the hub sees every process exactly once.
	a.hub = notify.NewHub(log)
	var notifier notify.Notifier = a.hub
	if cfg.Redis.Addr != "" {
		pub, err := notify.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Channel, log)
		if err != nil {
			log.Warn("redis unavailable, events stay in process", zap.Error(err))
		} else {
			a.redis = pub
			notifier = pub
			a.closers = append(a.closers, pub.Close)
		}
	}

	client, err := newLLMClient(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	nc := cfg.Navigation
	a.nav = navigation.New(navigation.Config{
		Assistants: assistants,
		FloorPlans: plans,
		Pathfinder: pathfinding.New(plans, pathfinding.Options{
			MovementSpeed: nc.MovementSpeed,
			Footprint:     geometry.Size{Width: nc.FootprintWidth, Height: nc.FootprintHeight},
		}, log),
		Notifier: notifier,
		ActionDB: assistants.DB(),
		Options: navigation.Options{
			StepInterval:     config.Duration(nc.StepInterval, navigation.DefaultOptions().StepInterval),
			ClampPadding:     nc.ClampPadding,
			DoorwayProximity: nc.DoorwayProximity,
		},
		Logger: log,
	})

	coordinator := council.NewCoordinator(council.CoordinatorConfig{
		Memory:     convo,
		LLM:        client,
		LLMOptions: llm.Options{Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens},
		Logger:     log,
	})
	executor := actions.New(actions.Config{
		Navigator:  a.nav,
		Assistants: assistants,
		Objects:    plans,
		Notifier:   notifier,
		ActionDB:   assistants.DB(),
		Logger:     log,
	})

	idleOpts := idle.DefaultOptions()
	idleOpts.Timeout = config.Duration(cfg.Idle.Timeout, idleOpts.Timeout)
	idleOpts.Tick = config.Duration(cfg.Idle.Tick, idleOpts.Tick)
	a.idle = idle.New(assistantID, idle.RunnerFunc(func(ctx context.Context, id string, idleFor time.Duration) (council.Decision, error) {
		return a.service.RunIdle(ctx, id, idleFor)
	}), assistants, idleOpts, log)

	a.service = companion.New(companion.Config{
		Assistants:   assistants,
		Plans:        plans,
		Coordinator:  coordinator,
		Executor:     executor,
		Conversation: convo,
		Notifier:     notifier,
		Activity:     a.idle,
		UseLLM:       client != nil,
		Logger:       log,
	})
	return a, nil
}

func newLLMClient(ctx context.Context, cfg *config.Config, a *app) (llm.Client, error) {
	timeout := config.Duration(cfg.LLM.Timeout, 0)
	switch cfg.LLM.Provider {
	case "genai":
		c, err := llm.NewGenAIClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, fmt.Errorf("genai client: %w", err)
		}
		return llm.WithTimeout(c, timeout), nil
	case "grpc":
		c, err := llm.NewGRPCClient(cfg.LLM.Addr)
		if err != nil {
			return nil, fmt.Errorf("grpc client: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		return llm.WithTimeout(c, timeout), nil
	default:
		return nil, nil
	}
}

// Close stops navigation and releases resources in reverse order.
func (a *app) Close() {
	if a.nav != nil {
		a.nav.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// #endregion app

// #region helpers

// ensureAssistant creates the assistant at the center of the active floor plan if it
// does not exist yet.
func ensureAssistant(assistants *state.Store, plans *floorplan.Store, id string) error {
	if _, err := assistants.Get(id); err == nil {
		return nil
	} else if !errors.Is(err, state.ErrNotFound) {
		return err
	}
	plan, err := plans.ActivePlan()
	if err != nil {
		return fmt.Errorf("active plan: %w", err)
	}
	layout, err := plans.Layout(plan.ID)
	if err != nil {
		return err
	}
	return assistants.Save(placeAssistant(id, layout))
}

// placeAssistant returns a fresh assistant at the plan center, or at the center of the
// first room when the plan center falls outside every room.
func placeAssistant(id string, layout floorplan.Layout) state.Assistant {
	center := layout.Plan.Bounds().Center()
	a := state.NewAssistant(id, center)
	a.FloorPlanID = layout.Plan.ID
	if r, ok := layout.RoomAt(center); ok {
		a.CurrentRoomID = r.ID
	} else if len(layout.Rooms) > 0 {
		r := layout.Rooms[0]
		a.Position = r.Bounds().Center()
		a.CurrentRoomID = r.ID
	}
	return a
}

func loadPersona(path string) (*council.Persona, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	var p council.Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	return &p, nil
}

// #endregion helpers
