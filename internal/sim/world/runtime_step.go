package world

import "time"

func (w *World) stepInternal(joins []JoinRequest, leaves []string, commands []CommandEnvelope) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Sessions come and go at the tick boundary; they never touch simulated state.
	// Joins go first so a session that joined and left within one tick ends up gone.
	for _, req := range joins {
		w.handleJoin(req)
	}
	for _, id := range leaves {
		w.handleLeave(id)
	}

	// Apply commands in server receive order. Drops reach the engine here, before it fires,
	// so a same-tick cancel always wins.
	recorded := make([]RecordedCommand, 0, len(commands))
	for _, env := range commands {
		recorded = append(recorded, RecordedCommand{SessionID: env.SessionID, Cmd: env.Cmd})
		ack := w.applyCommand(env.Cmd, nowTick)
		if env.SessionID != "" {
			w.sendTo(env.SessionID, ack)
		}
	}

	// Systems: merge -> expiry -> transformations.
	w.systemMerge(nowTick)
	w.systemItemExpiry(nowTick)
	fired := w.engine.Tick(nowTick)

	w.flushTransforms(nowTick)
	w.flushEvents(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Commands: recorded, Digest: digest}); err != nil {
			w.log.Warn().Err(err).Uint64("tick", nowTick).Msg("tick log write failed")
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	w.metrics.Store(WorldMetrics{
		Tick:      nextTick,
		Items:     len(w.items),
		Cauldrons: len(w.cauldrons),
		Clients:   len(w.clients),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:        stepMS,
		FiredLastTick: fired,
		EventsDropped: w.eventsDropped,
		Bleach:        w.engine.Stats(),
	})
	return digest
}
