package relay

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/mcdev12/timerboard/go/internal/events"
	"github.com/mcdev12/timerboard/go/internal/timers"
	"github.com/rs/zerolog/log"
)

// Broadcaster is the fan-out surface the router needs from the hub
type Broadcaster interface {
	SendTo(conn *Connection, event events.Envelope)
	BroadcastToOthers(sender *Connection, event events.Envelope)
	BroadcastToAll(event events.Envelope)
}

const lockStripes = 64

// keyedMutex serializes work per timer id. Ids hashing to the same stripe
// share a lock.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	h := fnv.New32a()
	h.Write([]byte(id))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// Router applies client frames to the registry and fans the result out.
// A mutation and its broadcast happen under the same per-id lock, so for any
// one timer clients observe events in the order the relay accepted them.
type Router struct {
	registry timers.Registry
	hub      Broadcaster
	mirror   Mirror
	clock    timers.Clock
	locks    keyedMutex
}

// NewRouter creates a protocol router
func NewRouter(registry timers.Registry, hub Broadcaster, mirror Mirror, clock timers.Clock) *Router {
	if mirror == nil {
		mirror = NoOpMirror{}
	}
	return &Router{
		registry: registry,
		hub:      hub,
		mirror:   mirror,
		clock:    clock,
	}
}

// Greeting builds the init-timers snapshot for a new connection
func (r *Router) Greeting() ([]byte, error) {
	env, err := r.envelope(events.TypeInitTimers, r.registry.Snapshot())
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// HandleMessage decodes one frame and dispatches it
func (r *Router) HandleMessage(conn *Connection, message []byte) {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		r.reject(conn, events.ErrCodeBadFrame, "bad json")
		return
	}

	logger := log.With().
		Str("connection_id", connID(conn)).
		Str("event_type", string(env.Type)).
		Logger()
	logger.Debug().Msg("received client message")

	var err error
	switch env.Type {
	case events.TypeAddTimer:
		err = r.handleAddTimer(conn, env.Data)
	case events.TypeRequestTime:
		err = r.handleRequestTime(conn, env.Data)
	case events.TypeTimerUpdate:
		err = r.handleTimerUpdate(conn, env.Data)
	case events.TypeMoveTimer:
		err = r.handleMoveTimer(conn, env.Data)
	case events.TypeTimerDeleted:
		err = r.handleTimerDeleted(conn, env.Data)
	default:
		r.reject(conn, events.ErrCodeUnknownType, "unknown type")
		return
	}

	if err != nil {
		logger.Warn().Err(err).Msg("client message refused")
		var frameErr *frameError
		if errors.As(err, &frameErr) {
			r.reject(conn, frameErr.code, frameErr.Error())
		}
	}
}

func (r *Router) handleAddTimer(conn *Connection, data json.RawMessage) error {
	var timer events.AddTimerPayload
	if err := decode(data, &timer); err != nil {
		return err
	}
	if timer.ID == "" {
		return &frameError{code: events.ErrCodeBadFrame, msg: "missing id"}
	}

	unlock := r.locks.lock(timer.ID)
	defer unlock()

	added, err := r.registry.Add(timer)
	switch {
	case errors.Is(err, timers.ErrInvalidSection):
		return &frameError{code: events.ErrCodeInvalidSection, msg: err.Error()}
	case errors.Is(err, timers.ErrDuplicateID):
		return &frameError{code: events.ErrCodeDuplicateID, msg: err.Error()}
	case err != nil:
		return err
	}
	if !added {
		return nil
	}

	log.Info().
		Str("timer_id", timer.ID).
		Str("display_number", timer.DisplayNumber).
		Int("section", int(timer.Section)).
		Msg("timer added")

	return r.fanOut(events.TypeTimerAdded, timer, func(env events.Envelope) {
		r.hub.BroadcastToOthers(conn, env)
	})
}

func (r *Router) handleRequestTime(conn *Connection, data json.RawMessage) error {
	var req events.RequestTimePayload
	if err := decode(data, &req); err != nil {
		return err
	}

	unlock := r.locks.lock(req.ID)
	defer unlock()

	remaining, ok := r.registry.ReadRemaining(req.ID)
	if !ok {
		// unknown timers get no reply
		return nil
	}

	env, err := r.envelope(events.TypeTimerSync, events.TimerSyncPayload{ID: req.ID, TimeLeftSeconds: remaining})
	if err != nil {
		return err
	}
	r.hub.SendTo(conn, env)
	return nil
}

func (r *Router) handleTimerUpdate(conn *Connection, data json.RawMessage) error {
	var update events.TimerUpdatePayload
	if err := decode(data, &update); err != nil {
		return err
	}

	unlock := r.locks.lock(update.ID)
	defer unlock()

	if !r.registry.RecordTick(update.ID, update.TimeLeftSeconds) {
		return nil
	}

	// the ticking client already holds this value; others never see it below zero
	payload := events.TimerSyncPayload{ID: update.ID, TimeLeftSeconds: max(0, update.TimeLeftSeconds)}
	env, err := r.envelope(events.TypeTimerSync, payload)
	if err != nil {
		return err
	}
	r.hub.BroadcastToOthers(conn, env)

	tick, err := r.envelope(events.TypeTimerUpdate, update)
	if err != nil {
		return err
	}
	r.mirrorEvent(tick)
	return nil
}

func (r *Router) handleMoveTimer(conn *Connection, data json.RawMessage) error {
	var move events.MoveTimerPayload
	if err := decode(data, &move); err != nil {
		return err
	}

	unlock := r.locks.lock(move.ID)
	defer unlock()

	reset, err := r.registry.Move(move.ID, move.Section)
	switch {
	case errors.Is(err, timers.ErrNotFound):
		return nil
	case errors.Is(err, timers.ErrInvalidSection):
		return &frameError{code: events.ErrCodeInvalidSection, msg: err.Error()}
	case err != nil:
		return err
	}

	log.Info().
		Str("timer_id", move.ID).
		Int("section", int(move.Section)).
		Int("reset_seconds", reset).
		Msg("timer moved")

	if err := r.fanOut(events.TypeTimerMoved, move, func(env events.Envelope) {
		r.hub.BroadcastToOthers(conn, env)
	}); err != nil {
		return err
	}

	// everyone, the mover included, converges on the reset value
	env, err := r.envelope(events.TypeTimerSync, events.TimerSyncPayload{ID: move.ID, TimeLeftSeconds: reset})
	if err != nil {
		return err
	}
	r.hub.BroadcastToAll(env)
	return nil
}

func (r *Router) handleTimerDeleted(conn *Connection, data json.RawMessage) error {
	id, err := decodeTimerID(data)
	if err != nil {
		return err
	}

	unlock := r.locks.lock(id)
	defer unlock()

	if r.registry.Remove(id) {
		log.Info().Str("timer_id", id).Msg("timer deleted")
	}

	return r.fanOut(events.TypeTimerDeleted, id, r.hub.BroadcastToAll)
}

// fanOut builds the event, hands it to send and mirrors it.
func (r *Router) fanOut(eventType events.Type, payload interface{}, send func(events.Envelope)) error {
	env, err := r.envelope(eventType, payload)
	if err != nil {
		return err
	}
	send(env)
	r.mirrorEvent(env)
	return nil
}

func (r *Router) mirrorEvent(env events.Envelope) {
	if err := r.mirror.Publish(context.Background(), env); err != nil {
		log.Error().Err(err).Str("event_type", string(env.Type)).Msg("failed to mirror event")
	}
}

func (r *Router) envelope(eventType events.Type, payload interface{}) (events.Envelope, error) {
	return events.NewEnvelope(eventType, r.clock.Now().UTC(), payload)
}

func (r *Router) reject(conn *Connection, code, message string) {
	env, err := r.envelope(events.TypeError, events.ErrorPayload{Code: code, Message: message})
	if err != nil {
		log.Error().Err(err).Msg("failed to build error event")
		return
	}
	r.hub.SendTo(conn, env)
}

// frameError is a refusal the sender is told about
type frameError struct {
	code string
	msg  string
}

func (e *frameError) Error() string { return e.msg }

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return &frameError{code: events.ErrCodeBadFrame, msg: "missing data"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &frameError{code: events.ErrCodeBadFrame, msg: "bad payload: " + err.Error()}
	}
	return nil
}

// decodeTimerID accepts a bare JSON string, or an object with an id field.
func decodeTimerID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil && id != "" {
		return id, nil
	}
	var req events.RequestTimePayload
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.ID == "" {
		return "", &frameError{code: events.ErrCodeBadFrame, msg: "missing id"}
	}
	return req.ID, nil
}

func connID(conn *Connection) string {
	if conn == nil {
		return ""
	}
	return conn.ID
}
