// Package intent implements the local rule-based multi-intent matcher (C1):
// it extracts device-control intents (volume, brightness, theme, display
// mode, subtitle) directly from recognized text, short-circuiting the cloud
// round-trip for simple voice commands.
//
// The rule table, keyword sets, and context-aware number extraction are
// grounded 1:1 on
// original_source/main/audio_processing/local_intent_detector.cc's
// InitializeDefaultRules and Extract*Parameters functions, generalized into
// one data-driven matcher instead of five near-duplicate extractor methods.
package intent

import (
	"strings"
	"unicode"
)

// Kind identifies the target of an intent.
type Kind int

const (
	Unknown Kind = iota
	VolumeControl
	BrightnessControl
	ThemeControl
	DisplayModeControl
	SubtitleControl
)

func (k Kind) String() string {
	switch k {
	case VolumeControl:
		return "volume_control"
	case BrightnessControl:
		return "brightness_control"
	case ThemeControl:
		return "theme_control"
	case DisplayModeControl:
		return "display_mode_control"
	case SubtitleControl:
		return "subtitle_control"
	default:
		return "unknown"
	}
}

// Param is one name/value entry of an IntentResult, kept as a slice rather
// than a map so parameter order is preserved (there is rarely more than one,
// but order matters when callers render it for logs or ACKs).
type Param struct {
	Name  string
	Value string
}

// IntentResult is a single matched intent.
type IntentResult struct {
	Kind       Kind
	Device     string
	Action     string
	Parameters []Param
	Confidence float64
}

// Set appends a parameter, or overwrites it in place if name is already
// present.
func (r *IntentResult) Set(name, value string) {
	for i := range r.Parameters {
		if r.Parameters[i].Name == name {
			r.Parameters[i].Value = value
			return
		}
	}
	r.Parameters = append(r.Parameters, Param{Name: name, Value: value})
}

// Get returns the value of a named parameter, if present.
func (r IntentResult) Get(name string) (string, bool) {
	for _, p := range r.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// rule is a single keyword-triggered detection rule.
type rule struct {
	keywords []string
	kind     Kind
	action   string
	device   string
	extract  func(processed string, res *IntentResult)
}

// defaultRules returns the rule table in the spec's declared priority order:
// Brightness, Volume, Theme, DisplayMode, Subtitle. Keyword lists are the
// original firmware's tables, reproduced byte-for-byte since they are part
// of the wire-level voice-control contract.
func defaultRules() []rule {
	return []rule{
		{
			keywords: []string{
				"亮度", "屏幕亮度", "调亮", "调暗", "屏幕", "亮点", "暗点",
				"brightness", "screen brightness", "调节亮度", "设置亮度",
				"屏幕调", "亮度调", "变亮", "变暗", "屏幕亮度调",
				"亮度最大", "亮度最小", "亮度大一点", "亮度小一点", "屏幕亮一点", "屏幕暗一点",
				"亮度调到最大", "亮度调到最小", "屏幕调到最大", "屏幕调到最小",
				"最亮", "最暗", "调到最亮", "调到最暗",
			},
			kind:    BrightnessControl,
			action:  "SetBrightness",
			device:  "Screen",
			extract: extractBrightnessParameters,
		},
		{
			keywords: []string{
				"音量", "声音", "大声", "小声", "调节音量", "设置音量", "音量调",
				"volume", "sound", "音量调到", "音量设为", "音量调成", "音量变成",
				"音量最大", "音量最小", "音量大一点", "音量小一点", "声音大一点", "声音小一点",
				"音量调到最大", "音量调到最小", "声音调到最大", "声音调到最小",
				"最响", "静音", "调到最响", "调到静音",
			},
			kind:    VolumeControl,
			action:  "SetVolume",
			device:  "Speaker",
			extract: extractVolumeParameters,
		},
		{
			keywords: []string{
				"白色主题", "黑色主题",
				"白天模式", "黑夜模式",
				"白色字体", "黑色字体",
				"白色字幕", "黑色字幕",
			},
			kind:    ThemeControl,
			action:  "SetTheme",
			device:  "Screen",
			extract: extractThemeParameters,
		},
		{
			keywords: []string{
				"静态模式", "动态模式",
				"静态壁纸", "动态壁纸",
				"静态皮肤", "动态皮肤",
				"表情包模式", "表情模式",
				"情绪模式", "切换到表情包",
				"表情包", "emoji模式",
			},
			kind:    DisplayModeControl,
			action:  "SetAnimatedMode",
			device:  "ImageDisplay",
			extract: extractDisplayModeParameters,
		},
		{
			keywords: []string{
				"打开字幕", "开启字幕", "显示字幕",
				"关闭字幕", "隐藏字幕", "关掉字幕",
			},
			kind:    SubtitleControl,
			action:  "ToggleSubtitle",
			device:  "SubtitleControl",
			extract: extractSubtitleParameters,
		},
	}
}

// preprocessText lowercases and strips punctuation/whitespace, matching
// PreprocessText's "uniform matching surface" behavior. Stripping is
// Unicode-aware so CJK text passes through unaffected.
func preprocessText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsPunct(r) || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// matchKeywords reports whether any (preprocessed) keyword occurs in text,
// which must already be preprocessed.
func matchKeywords(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, preprocessText(kw)) {
			return true
		}
	}
	return false
}
