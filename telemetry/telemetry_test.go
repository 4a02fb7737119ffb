package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestNoopLogger_NeverPanics(t *testing.T) {
	l := NewNoopLogger()
	ctx := context.Background()
	assert.NotPanics(t, func() {
		l.Debug(ctx, "msg", "k", "v")
		l.Info(ctx, "msg")
		l.Warn(ctx, "msg", "k")
		l.Error(ctx, "msg", "k", "v", "extra")
	})
}

func TestNoopMetrics_NeverPanics(t *testing.T) {
	m := NewNoopMetrics()
	assert.NotPanics(t, func() {
		m.IncCounter("c", 1, "tag", "v")
		m.RecordTimer("t", time.Second)
		m.RecordGauge("g", 2.5)
	})
}

func TestNoopTracer_ReturnsUsableSpan(t *testing.T) {
	tr := NewNoopTracer()
	ctx, span := tr.Start(context.Background(), "op")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent("evt")
		span.SetStatus(codes.Ok, "")
		span.RecordError(nil)
		span.End()
	})
	assert.NotNil(t, tr.Span(ctx))
}

func TestFielders_PairsKeyvalsAndPrefixesMessage(t *testing.T) {
	out := fielders("hello", []any{"a", 1, "b", "two"})
	assert.Len(t, out, 3, "msg entry plus one per key-value pair")
}

func TestFielders_OddTailPairsWithNil(t *testing.T) {
	out := fielders("hello", []any{"a"})
	assert.Len(t, out, 2)
}

func TestFielders_SkipsNonStringKeys(t *testing.T) {
	out := fielders("hello", []any{1, "v"})
	assert.Len(t, out, 1, "only the msg entry survives when the key isn't a string")
}

func TestTagsToAttrs_PairsTagsAndDefaultsMissingValue(t *testing.T) {
	attrs := tagsToAttrs([]string{"env", "prod", "region"})
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("env", "prod"),
		attribute.String("region", ""),
	}, attrs)
}

func TestKVToAttrs_TypesEachValueByKind(t *testing.T) {
	attrs := kvToAttrs([]any{
		"s", "text",
		"i", 7,
		"i64", int64(8),
		"f", 1.5,
		"b", true,
		"other", struct{}{},
	})
	require := assert.New(t)
	require.Equal(attribute.String("s", "text"), attrs[0])
	require.Equal(attribute.Int("i", 7), attrs[1])
	require.Equal(attribute.Int64("i64", 8), attrs[2])
	require.Equal(attribute.Float64("f", 1.5), attrs[3])
	require.Equal(attribute.Bool("b", true), attrs[4])
	require.Equal(attribute.String("other", ""), attrs[5])
}
