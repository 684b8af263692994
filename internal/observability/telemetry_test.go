package observability

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMain(m *testing.M) {
	logging.SetLogDir("")
	os.Exit(m.Run())
}

func TestInstall_ChunkJobsAreTraced(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := Install(context.Background(), "chunk-engine-test", trace.WithSyncer(exp))
	require.NoError(t, err)
	defer shutdown(context.Background())

	d := chunk.NewDispatcher(2)
	d.Go("chunk.generate", vec.Vec3{X: 1, Y: -2, Z: 3}, func(context.Context) error { return nil }, nil)
	d.Go("chunk.save", vec.Zero, func(context.Context) error { return errors.New("диск заполнен") }, nil)
	d.Wait()

	spans := exp.GetSpans()
	require.Len(t, spans, 2)

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}

	gen := byName["chunk.generate"]
	assert.Contains(t, gen.Attributes, attribute.Int("chunk.y", -2))
	assert.Equal(t, codes.Unset, gen.Status.Code)
	assert.Equal(t, codes.Error, byName["chunk.save"].Status.Code)

	svc, ok := gen.Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "chunk-engine-test", svc.AsString())
}
