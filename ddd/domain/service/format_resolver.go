package service

import (
	"errors"
	"sort"
	"strings"

	"medkit-service/ddd/domain/vo"
)

// ErrNoFormatsAvailable is returned for an empty catalog.
var ErrNoFormatsAvailable = errors.New("no formats available")

// audioContainerPreference orders audio-only containers from most to least wanted.
var audioContainerPreference = []string{"m4a", "webm", "opus", "mp3", "ogg"}

// ResolveFormat picks the variants that satisfy a quality request.
// The result depends only on the catalog contents, not their order.
func ResolveFormat(catalog []vo.Variant, quality vo.Quality) (vo.FormatPlan, error) {
	if len(catalog) == 0 {
		return vo.FormatPlan{}, ErrNoFormatsAvailable
	}
	variants := sortedCopy(catalog)

	if quality.IsAudio() {
		return resolveAudio(variants, quality)
	}

	tiers := videoTiers(variants)
	if len(tiers) == 0 {
		// audio-only catalog, hand back the best audio as a partial plan
		plan, err := resolveAudio(variants, quality)
		if err != nil {
			return vo.FormatPlan{}, err
		}
		plan.Partial = true
		return plan, nil
	}

	tier := pickTier(tiers, quality)
	plan := resolveAtTier(variants, tier)
	plan.Quality = quality
	return plan, nil
}

func sortedCopy(catalog []vo.Variant) []vo.Variant {
	out := make([]vo.Variant, len(catalog))
	copy(out, catalog)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// videoTiers returns the distinct heights carrying video, ascending.
func videoTiers(variants []vo.Variant) []int {
	seen := map[int]bool{}
	var tiers []int
	for _, v := range variants {
		if !v.HasVideo() || v.Height <= 0 || seen[v.Height] {
			continue
		}
		seen[v.Height] = true
		tiers = append(tiers, v.Height)
	}
	sort.Ints(tiers)
	return tiers
}

// pickTier maps a label onto an available tier: best and original take the top,
// worst the bottom, a specific height the closest tier. Closeness is the ratio to the
// target, so 480 and 1080 are equally close to 720; ties go to the higher tier.
func pickTier(tiers []int, quality vo.Quality) int {
	switch quality {
	case vo.QualityWorst:
		return tiers[0]
	case vo.QualityBest, vo.QualityOriginal:
		return tiers[len(tiers)-1]
	}
	target := quality.Height()
	if target <= 0 {
		return tiers[len(tiers)-1]
	}
	best := tiers[0]
	for _, t := range tiers[1:] {
		// tiers ascend, so an equal distance prefers t
		if compareDistance(t, best, target) <= 0 {
			best = t
		}
	}
	return best
}

// compareDistance orders a and b by their ratio distance to target.
func compareDistance(a, b, target int) int {
	an, ad := ratio(a, target)
	bn, bd := ratio(b, target)
	l, r := an*bd, bn*ad
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

func ratio(tier, target int) (int, int) {
	if tier >= target {
		return tier, target
	}
	return target, tier
}

func resolveAtTier(variants []vo.Variant, tier int) vo.FormatPlan {
	var combined, videoOnly *vo.Variant
	for i := range variants {
		v := &variants[i]
		if v.Height != tier || !v.HasVideo() {
			continue
		}
		if v.IsCombined() {
			if combined == nil || v.Bitrate() > combined.Bitrate() {
				combined = v
			}
			continue
		}
		if videoOnly == nil || v.VideoBitrate() > videoOnly.VideoBitrate() {
			videoOnly = v
		}
	}

	if combined != nil {
		return vo.FormatPlan{VideoID: combined.ID, Ext: combined.Ext, Height: tier}
	}

	audio := bestAudioOnly(variants)
	if audio != nil {
		return vo.FormatPlan{
			VideoID: videoOnly.ID,
			AudioID: audio.ID,
			Ext:     mergeContainer(videoOnly.Ext, audio.Ext),
			Height:  tier,
		}
	}
	return vo.FormatPlan{VideoID: videoOnly.ID, Ext: videoOnly.Ext, Height: tier, Partial: true}
}

func resolveAudio(variants []vo.Variant, quality vo.Quality) (vo.FormatPlan, error) {
	if a := bestAudioOnly(variants); a != nil {
		return vo.FormatPlan{Quality: quality, AudioID: a.ID, Ext: a.Ext}, nil
	}
	// no audio-only stream, fall back to the combined variant with the richest audio
	var best *vo.Variant
	for i := range variants {
		v := &variants[i]
		if !v.HasAudio() {
			continue
		}
		if best == nil || v.AudioBitrate() > best.AudioBitrate() || (v.AudioBitrate() == best.AudioBitrate() && v.Bitrate() > best.Bitrate()) {
			best = v
		}
	}
	if best != nil {
		return vo.FormatPlan{Quality: quality, VideoID: best.ID, Ext: best.Ext, Height: best.Height}, nil
	}
	// nothing carries audio, return the top video so the caller can decide
	tiers := videoTiers(variants)
	if len(tiers) == 0 {
		return vo.FormatPlan{}, ErrNoFormatsAvailable
	}
	plan := resolveAtTier(variants, tiers[len(tiers)-1])
	plan.Quality = quality
	plan.Partial = true
	return plan, nil
}

// bestAudioOnly walks the container preference list and returns the highest
// bitrate audio-only variant of the first container that has any.
func bestAudioOnly(variants []vo.Variant) *vo.Variant {
	byExt := map[string]*vo.Variant{}
	var anyBest *vo.Variant
	for i := range variants {
		v := &variants[i]
		if !v.IsAudioOnly() {
			continue
		}
		ext := strings.ToLower(v.Ext)
		if cur, ok := byExt[ext]; !ok || v.AudioBitrate() > cur.AudioBitrate() {
			byExt[ext] = v
		}
		if anyBest == nil || v.AudioBitrate() > anyBest.AudioBitrate() {
			anyBest = v
		}
	}
	for _, ext := range audioContainerPreference {
		if v, ok := byExt[ext]; ok {
			return v
		}
	}
	return anyBest
}

func mergeContainer(videoExt, audioExt string) string {
	if strings.EqualFold(videoExt, "webm") && (strings.EqualFold(audioExt, "webm") || strings.EqualFold(audioExt, "opus")) {
		return "webm"
	}
	return "mp4"
}
