package intent

import "strings"

// Detector matches recognized text against a rule table and extracts
// per-kind parameters. The zero value is not usable; construct with New.
type Detector struct {
	rules   []rule
	enabled bool
}

// New returns a Detector loaded with the default rule table.
func New() *Detector {
	return &Detector{rules: defaultRules(), enabled: true}
}

// SetEnabled toggles whether the detector matches anything at all.
func (d *Detector) SetEnabled(enabled bool) { d.enabled = enabled }

// Enabled reports whether the detector is active.
func (d *Detector) Enabled() bool { return d.enabled }

// context flags, computed against the raw (unprocessed) text exactly as
// local_intent_detector.cc does — case-sensitive, on the original bytes,
// not the lowercased/stripped matching surface.
type context struct {
	brightness, volume, theme, displayMode, subtitle bool
}

func detectContext(raw string) context {
	return context{
		brightness: strings.Contains(raw, "亮度") || strings.Contains(raw, "brightness"),
		volume:     strings.Contains(raw, "音量") || strings.Contains(raw, "声音") || strings.Contains(raw, "volume"),
		theme:      strings.Contains(raw, "主题") || strings.Contains(raw, "字体"),
		displayMode: strings.Contains(raw, "模式") || strings.Contains(raw, "壁纸") ||
			strings.Contains(raw, "皮肤") || strings.Contains(raw, "表情包"),
		subtitle: strings.Contains(raw, "字幕"),
	}
}

// rejectedByContext reports whether a matched rule of kind k should be
// skipped given the disambiguation flags computed from the raw text, one
// check per kind, mirroring DetectIntent's exact (non-symmetric) guard set.
func rejectedByContext(k Kind, c context) bool {
	switch k {
	case BrightnessControl:
		return c.volume && !c.brightness
	case VolumeControl:
		return c.brightness && !c.volume
	case ThemeControl:
		return (c.volume || c.brightness || c.displayMode) && !c.theme
	case DisplayModeControl:
		return (c.volume || c.brightness || c.theme) && !c.displayMode
	case SubtitleControl:
		return (c.volume || c.brightness || c.displayMode) && !c.subtitle
	default:
		return false
	}
}

func (d *Detector) matchRule(r rule, processed string) (IntentResult, bool) {
	if !matchKeywords(processed, r.keywords) {
		return IntentResult{}, false
	}
	res := IntentResult{
		Kind:       r.kind,
		Device:     r.device,
		Action:     r.action,
		Confidence: 0.9,
	}
	if r.extract != nil {
		r.extract(processed, &res)
	}
	return res, true
}

// DetectIntent returns the first matching rule's result, honoring
// declared priority order and context disambiguation. It reports false if
// the detector is disabled, the text is empty, or nothing matches.
func (d *Detector) DetectIntent(text string) (IntentResult, bool) {
	if !d.enabled || text == "" {
		return IntentResult{}, false
	}
	processed := preprocessText(text)
	ctx := detectContext(text)

	for _, r := range d.rules {
		res, ok := d.matchRule(r, processed)
		if !ok {
			continue
		}
		if rejectedByContext(r.kind, ctx) {
			continue
		}
		return res, true
	}
	return IntentResult{}, false
}

// DetectMultipleIntents walks every rule in priority order and returns one
// IntentResult per kind that matches and survives context disambiguation,
// skipping any kind already present in the result set.
func (d *Detector) DetectMultipleIntents(text string) []IntentResult {
	if !d.enabled || text == "" {
		return nil
	}
	processed := preprocessText(text)
	ctx := detectContext(text)

	seen := make(map[Kind]bool, len(d.rules))
	var results []IntentResult
	for _, r := range d.rules {
		if seen[r.kind] {
			continue
		}
		res, ok := d.matchRule(r, processed)
		if !ok {
			continue
		}
		if rejectedByContext(r.kind, ctx) {
			continue
		}
		results = append(results, res)
		seen[r.kind] = true
	}
	return results
}
