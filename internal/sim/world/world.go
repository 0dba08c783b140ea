package world

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/bleach"
	"dyewash.ai/internal/sim/catalogs"
	itemspkg "dyewash.ai/internal/sim/world/feature/entities/items"
)

type WorldConfig struct {
	ID           string
	TickRateHz   int
	ItemTTLTicks int
	MaxStack     int

	Profile catalogs.Profile

	ChargeThreshold int
	ChargeCost      int
	DelayTicks      int
}

func (c *WorldConfig) normalize() {
	if c.ID == "" {
		c.ID = "overworld"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.MaxStack <= 0 || c.MaxStack > 64 {
		c.MaxStack = 64
	}
	if c.ItemTTLTicks < 0 {
		c.ItemTTLTicks = itemspkg.EntityTTLTicksDefault
	}
	if c.DelayTicks <= 0 {
		c.DelayTicks = bleach.DefaultDelayTicks
	}
}

// CommandEnvelope is one host command as received, before tick application.
type CommandEnvelope struct {
	SessionID string
	Cmd       protocol.CmdMsg
}

type JoinRequest struct {
	SessionID string
	Events    bool
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// World is a single-threaded authoritative simulation of cauldrons and dropped items.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg     WorldConfig
	catalog *catalogs.MaterialCatalog
	engine  *bleach.Engine
	log     zerolog.Logger
	runID   string

	tick atomic.Uint64

	items     map[string]*ItemEntity
	itemsAt   map[Vec3i][]string
	cauldrons map[Vec3i]*Cauldron
	clients   map[string]*clientState

	inbox      chan CommandEnvelope
	join       chan JoinRequest
	leave      chan string
	adminState chan adminStateReq
	stop       chan struct{}

	nextItemNum atomic.Uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger
	sinks       []bleach.Recorder

	eventsThisTick     []protocol.Event
	transformsThisTick []bleach.Transform
	eventsDropped      uint64

	metrics atomic.Value
}

type clientState struct {
	Out    chan []byte
	Events bool
}

func New(cfg WorldConfig, cat *catalogs.MaterialCatalog, logger zerolog.Logger) (*World, error) {
	if cat == nil {
		return nil, errors.New("world: nil material catalog")
	}
	if cfg.Profile.WaterCauldron == "" {
		return nil, errors.New("world: profile has no water cauldron kind")
	}
	cfg.normalize()

	w := &World{
		cfg:        cfg,
		catalog:    cat,
		log:        logger.With().Str("world", cfg.ID).Logger(),
		items:      map[string]*ItemEntity{},
		itemsAt:    map[Vec3i][]string{},
		cauldrons:  map[Vec3i]*Cauldron{},
		clients:    map[string]*clientState{},
		inbox:      make(chan CommandEnvelope, 1024),
		join:       make(chan JoinRequest, 64),
		leave:      make(chan string, 64),
		adminState: make(chan adminStateReq, 16),
		stop:       make(chan struct{}),
	}
	w.engine = bleach.New(bleach.Config{
		ChargeThreshold: cfg.ChargeThreshold,
		ChargeCost:      cfg.ChargeCost,
		DelayTicks:      uint64(cfg.DelayTicks),
		WaterCauldron:   cfg.Profile.WaterCauldron,
	}, cat, w, logger.With().Str("component", "bleach").Logger())
	w.engine.SetRecorder(w)
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }
func (w *World) SetRunID(id string)           { w.runID = id }

// AddTransformSink registers a sink that sees every fired transformation at the end of
// its tick. Sinks are called on the world goroutine and must not block.
func (w *World) AddTransformSink(r bleach.Recorder) {
	if r != nil {
		w.sinks = append(w.sinks, r)
	}
}

func (w *World) Inbox() chan<- CommandEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest      { return w.join }
func (w *World) Leave() chan<- string          { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) Catalog() *catalogs.MaterialCatalog { return w.catalog }

var ErrInboxFull = errors.New("world inbox full")

// Submit queues a command without blocking.
func (w *World) Submit(env CommandEnvelope) error {
	select {
	case w.inbox <- env:
		return nil
	default:
		return ErrInboxFull
	}
}

func (w *World) welcome(sessionID string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		RunID:           w.runID,
		WorldID:         w.cfg.ID,
		ServerTick:      w.tick.Load(),
		WorldParams: protocol.WorldParams{
			TickRateHz:    w.cfg.TickRateHz,
			Profile:       w.cfg.Profile.Tag,
			WaterCauldron: w.cfg.Profile.WaterCauldron,
			DelayTicks:    w.cfg.DelayTicks,
			MaxStack:      w.cfg.MaxStack,
			ItemTTLTicks:  w.cfg.ItemTTLTicks,
		},
		Catalog: protocol.DigestRef{Digest: w.catalog.Digest(), Count: w.catalog.Len()},
	}
}

func (w *World) handleJoin(req JoinRequest) {
	if req.SessionID != "" && req.Out != nil {
		w.clients[req.SessionID] = &clientState{Out: req.Out, Events: req.Events}
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: w.welcome(req.SessionID)}
	}
}

func (w *World) handleLeave(sessionID string) {
	delete(w.clients, sessionID)
}
