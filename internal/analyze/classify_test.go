package analyze

import (
	"testing"

	"github.com/tracekit/blockscope/internal/model"
)

func TestClassifySingleBit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mask model.CauseMask
		want model.Reason
	}{
		{model.CauseScheduling, model.ReasonScheduling},
		{model.CausePacing, model.ReasonPacing},
		{model.CauseAmplificationProtection, model.ReasonAmplificationProtection},
		{model.CauseCongestionControl, model.ReasonCongestionControl},
		{model.CauseConnectionFlowControl, model.ReasonConnectionFlowControl},
		{model.CauseStreamFlowControl, model.ReasonStreamFlowControl},
		{model.CauseApp, model.ReasonApp},
		{model.CauseStreamIDFlowControl, model.ReasonStreamIDFlowControl},
	}

	for _, tc := range cases {
		if got := Classify(tc.mask); got != tc.want {
			t.Errorf("Classify(%#x) = %q, want %q", tc.mask, got, tc.want)
		}
	}
}

func TestClassifyZeroMask(t *testing.T) {
	t.Parallel()

	if got := Classify(0); got != model.ReasonNone {
		t.Fatalf("Classify(0) = %q, want %q", got, model.ReasonNone)
	}
}

func TestClassifyMultiBitReportsHighestPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mask model.CauseMask
		want model.Reason
	}{
		{"scheduling beats pacing", model.CauseScheduling | model.CausePacing, model.ReasonScheduling},
		{"pacing beats congestion", model.CausePacing | model.CauseCongestionControl, model.ReasonPacing},
		{"stream flow control beats app", model.CauseStreamFlowControl | model.CauseApp, model.ReasonStreamFlowControl},
		{"app beats stream id flow control", model.CauseApp | model.CauseStreamIDFlowControl, model.ReasonApp},
		{"all bits", 0xFF, model.ReasonScheduling},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.mask); got != tc.want {
				t.Errorf("Classify(%#x) = %q, want %q", tc.mask, got, tc.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	t.Parallel()

	mask := model.CauseCongestionControl | model.CauseApp
	first := Classify(mask)
	for i := 0; i < 100; i++ {
		if got := Classify(mask); got != first {
			t.Fatalf("Classify(%#x) changed between calls: %q then %q", mask, first, got)
		}
	}
}

func TestReasonsExcludesNone(t *testing.T) {
	t.Parallel()

	reasons := Reasons()
	if len(reasons) != 8 {
		t.Fatalf("Reasons() returned %d labels, want 8", len(reasons))
	}
	for _, r := range reasons {
		if r == model.ReasonNone {
			t.Fatalf("Reasons() includes %q", model.ReasonNone)
		}
	}
	if reasons[0] != model.ReasonScheduling {
		t.Errorf("Reasons()[0] = %q, want %q", reasons[0], model.ReasonScheduling)
	}
	if reasons[len(reasons)-1] != model.ReasonStreamIDFlowControl {
		t.Errorf("Reasons() last = %q, want %q", reasons[len(reasons)-1], model.ReasonStreamIDFlowControl)
	}
}
