package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/google/uuid"
)

// Типы событий движка чанков
const (
	EventChunkTransition = "chunk.transition"
	EventChunkLoaded     = "chunk.loaded"
	EventChunkSaved      = "chunk.saved"
)

// SchemaVersion версия полезной нагрузки
const SchemaVersion = 1

// Priority важность события при переполненной очереди
type Priority int

const (
	PriorityTransition  Priority = 1
	PriorityPersistence Priority = 3
	// PriorityBlocking и выше ждут места в очереди
	PriorityBlocking Priority = 5
)

// Droppable событие можно потерять при полной очереди
func (p Priority) Droppable() bool { return p < PriorityBlocking }

// ChunkKey ключ чанка в событиях и фильтрах
func ChunkKey(p vec.Vec3) string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// TransitionPayload смена состояния чанка
type TransitionPayload struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
	From string `json:"from"`
	To   string `json:"to"`
	Tick uint64 `json:"tick"`
}

// LoadPayload итог загрузки чанка
type LoadPayload struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
	Result string `json:"result"`
}

// SavePayload итог сохранения чанка
type SavePayload struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Error string `json:"error,omitempty"`
}

// NewEnvelope упаковывает payload в JSON-конверт с новым UUID
func NewEnvelope(source, eventType string, priority Priority, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("событие %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   SchemaVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

func newChunkEvent(source, eventType string, priority Priority, pos vec.Vec3, payload any) (*Envelope, error) {
	ev, err := NewEnvelope(source, eventType, priority, payload)
	if err != nil {
		return nil, err
	}
	ev.Chunk = ChunkKey(pos)
	return ev, nil
}

// NewTransitionEvent переход чанка pos из from в to на тике tick
func NewTransitionEvent(source string, pos vec.Vec3, from, to string, tick uint64) (*Envelope, error) {
	return newChunkEvent(source, EventChunkTransition, PriorityTransition, pos, TransitionPayload{
		X: pos.X, Y: pos.Y, Z: pos.Z, From: from, To: to, Tick: tick,
	})
}

// NewLoadEvent итог загрузки чанка
func NewLoadEvent(source string, pos vec.Vec3, result string) (*Envelope, error) {
	return newChunkEvent(source, EventChunkLoaded, PriorityPersistence, pos, LoadPayload{
		X: pos.X, Y: pos.Y, Z: pos.Z, Result: result,
	})
}

// NewSaveEvent итог сохранения чанка, err == nil при успехе
func NewSaveEvent(source string, pos vec.Vec3, err error) (*Envelope, error) {
	p := SavePayload{X: pos.X, Y: pos.Y, Z: pos.Z}
	if err != nil {
		p.Error = err.Error()
	}
	return newChunkEvent(source, EventChunkSaved, PriorityPersistence, pos, p)
}

// Decode разбирает полезную нагрузку конверта
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
