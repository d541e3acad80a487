package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/sluice/metrics"
	"github.com/justapithecus/sluice/pipeline"
	"github.com/justapithecus/sluice/types"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"pipe_run", true},

		// Not supported: one-shot commands
		{"version", false},
		{"pingpong", false},

		// Not supported: unknown
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()

	if len(views) == 0 {
		t.Fatal("SupportedTUIViews() returned no views")
	}

	// All returned views should be supported
	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	err := Run("version", nil)
	if err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestRun_InvalidPayload(t *testing.T) {
	err := Run("pipe_run", "not a live view")
	if err == nil {
		t.Error("Expected error for invalid payload type")
	}
}

func testResult() *pipeline.Result {
	return &pipeline.Result{
		Meta:      &types.PipeMeta{PipeID: "pipe-001", Attempt: 1},
		Outcome:   &types.PipeOutcome{Status: types.OutcomeCompleted},
		Received:  10,
		Persisted: 8,
		Dropped:   2,
		Duration:  1500 * time.Millisecond,
	}
}

func TestPipeModel_ViewRunning(t *testing.T) {
	collector := metrics.NewCollector("batcher", "stub", "pipe-001")
	collector.AbsorbPolicyStats(10, 8, 2, nil, nil)

	model := NewPipeModel(&LiveView{PipeID: "pipe-001", Collector: collector})
	view := model.View()

	if !strings.Contains(view, "pipe-001") {
		t.Error("expected pipe id in view")
	}
	if !strings.Contains(view, "running") {
		t.Error("expected running state before result lands")
	}
}

func TestPipeModel_ViewWithResult(t *testing.T) {
	collector := metrics.NewCollector("batcher", "stub", "pipe-001")

	model := NewPipeModel(&LiveView{PipeID: "pipe-001", Collector: collector})
	updated, _ := model.Update(resultMsg{result: testResult()})
	view := updated.View()

	if !strings.Contains(view, "completed") {
		t.Error("expected outcome in view")
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(testResult())

	for _, want := range []string{"pipe-001", "completed", "10", "8", "2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected summary to contain %q", want)
		}
	}
}
