package vo

import "strings"

// GenericSelector asks the fetcher for whatever single best variant it has.
const GenericSelector = "best"

// FormatPlan is the resolver's choice of variants for a request.
type FormatPlan struct {
	Quality      Quality
	VideoID      string
	AudioID      string
	Ext          string
	Height       int
	TargetHeight int
	// Partial marks a plan that lacks a stream the request wanted.
	Partial bool
}

// NeedsMerge is true when video and audio come from separate variants.
func (p FormatPlan) NeedsMerge() bool {
	return p.VideoID != "" && p.AudioID != ""
}

// Selector renders the plan as a fetcher selector, "v+a" for merges.
func (p FormatPlan) Selector() string {
	switch {
	case p.NeedsMerge():
		return p.VideoID + "+" + p.AudioID
	case p.VideoID != "":
		return p.VideoID
	case p.AudioID != "":
		return p.AudioID
	default:
		return GenericSelector
	}
}

// IsCombinedSelector reports a selector joining two variants.
func IsCombinedSelector(selector string) bool {
	return strings.Contains(selector, "+")
}
