// Package analyze turns raw per-connection send-blocking events into a flat,
// classified, duration-weighted row set.
package analyze

import "github.com/tracekit/blockscope/internal/model"

// causeRule binds one cause flag to its canonical reason label.
type causeRule struct {
	flag   model.CauseMask
	reason model.Reason
}

// causePriority is the fixed evaluation order for classification. When
// several cause bits are set only the first matching rule is reported.
// The order is part of the contract; do not sort or reorder.
var causePriority = []causeRule{
	{model.CauseScheduling, model.ReasonScheduling},
	{model.CausePacing, model.ReasonPacing},
	{model.CauseAmplificationProtection, model.ReasonAmplificationProtection},
	{model.CauseCongestionControl, model.ReasonCongestionControl},
	{model.CauseConnectionFlowControl, model.ReasonConnectionFlowControl},
	{model.CauseStreamFlowControl, model.ReasonStreamFlowControl},
	{model.CauseApp, model.ReasonApp},
	{model.CauseStreamIDFlowControl, model.ReasonStreamIDFlowControl},
}

// Classify maps a cause bitmask to exactly one canonical reason. It is pure
// and total: a zero mask yields ReasonNone, anything else yields the
// highest-priority matching reason.
func Classify(mask model.CauseMask) model.Reason {
	for _, rule := range causePriority {
		if mask.Has(rule.flag) {
			return rule.reason
		}
	}
	return model.ReasonNone
}

// Reasons returns the canonical reason labels in priority order, excluding
// ReasonNone. Useful for stable legends and chart ordering.
func Reasons() []model.Reason {
	out := make([]model.Reason, 0, len(causePriority))
	for _, rule := range causePriority {
		out = append(out, rule.reason)
	}
	return out
}
