package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ErrTickInProgress is returned when a tick trigger arrives while another
// tick is still executing. Overlapping ticks would double-advance world time.
var ErrTickInProgress = errors.New("tick already in progress")

// weatherChangeChance is the per-tick probability of redrawing the weather.
const weatherChangeChance = 0.3

// Oracle turns a decision context into a decision. Implementations are total:
// every failure path must fold into a valid fallback decision.
type Oracle interface {
	Decide(ctx context.Context, dc DecisionContext) Decision
}

// ClockConfig tunes the tick scheduler.
type ClockConfig struct {
	// Workers bounds per-agent concurrency within one tick. Zero means 4.
	Workers int
	// Seed seeds the weather RNG; zero seeds from the wall clock.
	Seed int64
}

// TickResult reports the outcome of one tick.
type TickResult struct {
	Reset     bool   `json:"reset,omitempty"`
	TimeOfDay int    `json:"time_of_day"`
	DayCount  int    `json:"day_count"`
	Weather   string `json:"weather"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// Clock owns the wall-clock-to-game-time mapping and runs the per-agent
// decision pipeline once per tick. At most one tick executes at a time.
type Clock struct {
	store   Store
	oracle  Oracle
	engine  *Engine
	reset   *ResetController
	workers int
	log     *slog.Logger

	tickMu sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewClock creates a tick scheduler.
func NewClock(store Store, oracle Oracle, engine *Engine, reset *ResetController, cfg ClockConfig, log *slog.Logger) *Clock {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Clock{
		store:   store,
		oracle:  oracle,
		engine:  engine,
		reset:   reset,
		workers: cfg.Workers,
		log:     log,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Tick advances world time by one hour and runs every agent's decision
// pipeline. A second trigger while a tick is running returns
// ErrTickInProgress without touching any state. If the stored reset flag is
// set, the tick runs the reset controller instead; the flag is cleared only
// after the reset succeeds, so a failed reset can be retried.
func (c *Clock) Tick(ctx context.Context) (TickResult, error) {
	if !c.tickMu.TryLock() {
		return TickResult{}, ErrTickInProgress
	}
	defer c.tickMu.Unlock()

	requested, err := c.store.ResetRequested(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("check reset flag: %w", err)
	}
	if requested {
		return c.runReset(ctx)
	}
	return c.runTick(ctx)
}

func (c *Clock) runReset(ctx context.Context) (TickResult, error) {
	c.log.Info("reset flag detected, resetting world")
	if err := c.reset.Reset(ctx); err != nil {
		// Flag stays set so the next tick retries.
		return TickResult{}, err
	}
	if err := c.store.SetResetFlag(ctx, false); err != nil {
		return TickResult{}, fmt.Errorf("clear reset flag: %w", err)
	}
	c.emitSystemEvent(ctx, "Game world has been reset", map[string]any{
		"reset_at": time.Now().UTC().Format(time.RFC3339),
	})
	return TickResult{
		Reset:     true,
		TimeOfDay: baselineHour,
		DayCount:  baselineDay,
		Weather:   WeatherClear,
	}, nil
}

func (c *Clock) runTick(ctx context.Context) (TickResult, error) {
	ws, err := c.store.WorldState(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("fetch world state: %w", err)
	}

	ws.TimeOfDay++
	if ws.TimeOfDay >= 24 {
		ws.TimeOfDay = 0
		ws.DayCount++
	}
	ws.Weather = c.nextWeather(ws.Weather)

	if err := c.store.UpdateWorldState(ctx, ws); err != nil {
		return TickResult{}, fmt.Errorf("update world state: %w", err)
	}

	switch ws.TimeOfDay {
	case 0:
		c.emitSystemEvent(ctx, fmt.Sprintf("Day %d begins", ws.DayCount), map[string]any{"day": ws.DayCount})
	case 6:
		c.emitSystemEvent(ctx, "The sun rises over NPC Town", map[string]any{"time": ws.TimeOfDay})
	case 20:
		c.emitSystemEvent(ctx, "Night falls on NPC Town", map[string]any{"time": ws.TimeOfDay})
	}

	result := TickResult{TimeOfDay: ws.TimeOfDay, DayCount: ws.DayCount, Weather: ws.Weather}

	agents, err := c.store.ListAgents(ctx)
	if err != nil {
		// World time is already persisted; the tick stands even if no
		// agent could be attempted.
		c.log.Error("list agents failed, skipping agent phase", "error", err)
		return result, nil
	}

	processed, failed := c.processAgents(ctx, agents, ws)
	result.Processed = processed
	result.Failed = failed

	c.log.Info("tick complete",
		"time_of_day", ws.TimeOfDay,
		"day", ws.DayCount,
		"weather", ws.Weather,
		"agents", processed,
		"failed", failed,
	)
	return result, nil
}

// processAgents runs the decision pipeline for every agent with bounded
// concurrency. Each agent owns its own record during its apply step; a
// failure for one agent never aborts the others.
func (c *Clock) processAgents(ctx context.Context, agents []Agent, ws WorldState) (processed, failed int) {
	locations, err := c.store.ListLocations(ctx)
	if err != nil {
		c.log.Warn("list locations failed, agents decide without them", "error", err)
	}

	resolve := SnapshotResolver(agents)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)
	sem := make(chan struct{}, c.workers)

	for i := range agents {
		wg.Add(1)
		sem <- struct{}{}
		go func(agent Agent) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := c.processAgent(ctx, agent, agents, locations, ws, resolve); err != nil {
				c.log.Error("agent turn failed", "agent", agent.Name, "error", err)
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(agents[i])
	}
	wg.Wait()

	return len(agents), failures
}

func (c *Clock) processAgent(ctx context.Context, agent Agent, all []Agent, locations []Location, ws WorldState, resolve TargetResolver) error {
	CoerceAgent(&agent)

	others := make([]Agent, 0, len(all)-1)
	for _, other := range all {
		if other.ID != agent.ID {
			others = append(others, other)
		}
	}

	dc := BuildContext(agent, others, locations, ws, recentMemories(agent))
	decision := c.oracle.Decide(ctx, dc)
	event := c.engine.Apply(&agent, decision, resolve)

	if err := c.store.UpdateAgent(ctx, agent); err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if _, err := c.store.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// nextWeather redraws the weather with probability weatherChangeChance,
// otherwise keeps it.
func (c *Clock) nextWeather(current string) string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	if c.rng.Float64() < weatherChangeChance {
		return Weathers[c.rng.Intn(len(Weathers))]
	}
	return current
}

func (c *Clock) emitSystemEvent(ctx context.Context, description string, metadata map[string]any) {
	_, err := c.store.InsertEvent(ctx, Event{
		Type:        EventSystem,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		c.log.Warn("system event insert failed", "description", description, "error", err)
	}
}

// recentMemories returns the agent's most recent memories, newest first.
func recentMemories(agent Agent) []MemoryEntry {
	n := len(agent.Memory)
	depth := contextMemoryDepth
	if n < depth {
		depth = n
	}
	out := make([]MemoryEntry, 0, depth)
	for i := n - 1; i >= n-depth; i-- {
		out = append(out, agent.Memory[i])
	}
	return out
}

// SnapshotResolver resolves agent names against an agent snapshot.
// Slightly-stale identity reads are acceptable for relationship lookups.
func SnapshotResolver(agents []Agent) TargetResolver {
	byName := make(map[string]Agent, len(agents))
	for _, a := range agents {
		byName[strings.ToLower(a.Name)] = a
	}
	return func(name string) (Agent, bool) {
		a, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		return a, ok
	}
}
