package isr

import (
	"context"
	"testing"
	"time"

	"github.com/saiset-co/sai-isr/logger"
	"github.com/saiset-co/sai-isr/metrics"
	"github.com/saiset-co/sai-isr/types"
)

func TestNewEngineRejectsBadScheduleSpec(t *testing.T) {
	cfg := newTestConfig(t, func(c *types.ISRConfig) {
		c.Schedule = &types.ScheduleConfig{Enabled: true, Spec: "not a cron spec", URLs: []string{"/page"}}
	})

	_, err := NewEngine(context.Background(), cfg, logger.NewNopLogger(), metrics.NewNopMetrics(),
		Options{Renderer: &fakeRenderer{html: "<html></html>"}})
	if !types.IsError(err, types.ErrScheduleExpressionInvalid) {
		t.Errorf("err = %v, want ErrScheduleExpressionInvalid", err)
	}
}

func TestNewEngineToleratesBadTimezone(t *testing.T) {
	cfg := newTestConfig(t, func(c *types.ISRConfig) {
		c.Schedule = &types.ScheduleConfig{
			Enabled:  true,
			Spec:     "@hourly",
			Timezone: "Mars/Olympus_Mons",
			URLs:     []string{"/page"},
		}
	})

	if _, err := NewEngine(context.Background(), cfg, logger.NewNopLogger(), metrics.NewNopMetrics(),
		Options{Renderer: &fakeRenderer{html: "<html></html>"}}); err != nil {
		t.Errorf("unknown timezone must fall back, got %v", err)
	}
}

func TestScheduledRevalidationRebuildsCachedURLs(t *testing.T) {
	renderer := &fakeRenderer{html: pageWithState("rebuilt", `{"revalidate":60}`)}
	cfg := newTestConfig(t, func(c *types.ISRConfig) {
		c.Schedule = &types.ScheduleConfig{
			Enabled: true,
			Spec:    "@every 100ms",
			URLs:    []string{"/scheduled"},
		}
	})
	engine := newTestEngine(t, cfg, Options{Renderer: renderer})

	seedEntry(t, engine, "/scheduled", "old body", types.EntryMeta{
		Revalidate: types.Revalidate(3600),
		BuildID:    "test-build",
		CreatedAt:  time.Now(),
	})

	deadline := time.Now().Add(3 * time.Second)
	for renderer.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if renderer.callCount() == 0 {
		t.Fatal("scheduled revalidation never rendered")
	}
}

func TestScheduledRevalidationSkipsUncachedURLs(t *testing.T) {
	renderer := &fakeRenderer{html: pageWithState("rebuilt", `{"revalidate":60}`)}
	cfg := newTestConfig(t, func(c *types.ISRConfig) {
		c.Schedule = &types.ScheduleConfig{
			Enabled: true,
			Spec:    "@every 100ms",
			URLs:    []string{"/never-cached"},
		}
	})
	engine := newTestEngine(t, cfg, Options{Renderer: renderer})
	_ = engine

	time.Sleep(350 * time.Millisecond)
	if renderer.callCount() != 0 {
		t.Errorf("renderer calls = %d, uncached URLs must not be rebuilt", renderer.callCount())
	}
}
