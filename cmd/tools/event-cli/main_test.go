package main

import (
	"errors"
	"testing"
	"time"

	"github.com/annel0/chunk-engine/internal/eventbus"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"chunk.saved", "chunk.loaded"}, parseStringList(" chunk.saved, ,chunk.loaded "))
}

func TestParseSinceTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSinceTime("30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), got)

	got, err = parseSinceTime("2024-04-30T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC), got)

	got, err = parseSinceTime("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseSinceTime("yesterday", now)
	assert.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	ev, err := eventbus.NewTransitionEvent("world", vec.Vec3{X: 1, Y: -2, Z: 3}, "decorating", "active", 9)
	require.NoError(t, err)
	assert.Contains(t, formatEvent(ev), "(1,-2,3) decorating -> active tick=9")

	ev, err = eventbus.NewSaveEvent("world", vec.Vec3{X: 4}, errors.New("disk full"))
	require.NoError(t, err)
	assert.Contains(t, formatEvent(ev), "error: disk full")
}

func TestParseChunkList(t *testing.T) {
	assert.Equal(t, []string{"1,-2,3", "0,0,0"}, parseChunkList("1, -2, 3; ;0,0,0"))
	assert.Nil(t, parseChunkList(""))
}

func TestTypeCounter(t *testing.T) {
	c := newTypeCounter()
	c.add("chunk.saved")
	c.add("chunk.transition")
	c.add("chunk.transition")

	total, stats := c.snapshot()
	assert.Equal(t, 3, total)
	require.Len(t, stats, 2)
	assert.Equal(t, typeStat{"chunk.transition", 2}, stats[0])
}

func TestPrintToken_ShortSecret(t *testing.T) {
	assert.Error(t, printToken("short", "ops", time.Hour))
	assert.NoError(t, printToken("long-enough-admin-secret", "ops", time.Hour))
}
