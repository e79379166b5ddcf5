package intent

import (
	"strconv"
	"strings"
)

// Each extractor receives the preprocessed text and mutates the result
// in place, reproducing Extract{Volume,Brightness,Theme,DisplayMode,
// Subtitle}Parameters byte-for-byte in priority order.

func extractVolumeParameters(text string, res *IntentResult) {
	if strings.Contains(text, "最大") || strings.Contains(text, "最响") {
		res.Set("volume", "100")
		res.Confidence = 0.98
		return
	}
	if strings.Contains(text, "最小") || strings.Contains(text, "静音") {
		res.Set("volume", "0")
		res.Confidence = 0.98
		return
	}
	if strings.Contains(text, "大一点") || strings.Contains(text, "大一些") {
		res.Set("relative", "increase_10")
		res.Confidence = 0.9
		return
	}
	if strings.Contains(text, "小一点") || strings.Contains(text, "小一些") {
		res.Set("relative", "decrease_10")
		res.Confidence = 0.9
		return
	}

	volume := extractNumberWithContext(text, []string{"音量", "声音", "volume", "sound"})
	if volume >= 0 && volume <= 100 {
		res.Set("volume", strconv.Itoa(volume))
		res.Confidence = 0.95
		return
	}
	if strings.Contains(text, "大") || strings.Contains(text, "高") {
		res.Set("relative", "increase")
		res.Confidence = 0.8
	} else if strings.Contains(text, "小") || strings.Contains(text, "低") {
		res.Set("relative", "decrease")
		res.Confidence = 0.8
	}
}

func extractBrightnessParameters(text string, res *IntentResult) {
	if strings.Contains(text, "最大") || strings.Contains(text, "最亮") {
		res.Set("brightness", "100")
		res.Confidence = 0.98
		return
	}
	if strings.Contains(text, "最小") || strings.Contains(text, "最暗") {
		res.Set("brightness", "0")
		res.Confidence = 0.98
		return
	}
	if strings.Contains(text, "大一点") || strings.Contains(text, "亮一点") || strings.Contains(text, "大一些") {
		res.Set("relative", "increase_10")
		res.Confidence = 0.9
		return
	}
	if strings.Contains(text, "小一点") || strings.Contains(text, "暗一点") || strings.Contains(text, "小一些") {
		res.Set("relative", "decrease_10")
		res.Confidence = 0.9
		return
	}

	brightness := extractNumberWithContext(text, []string{"亮度", "屏幕", "brightness", "screen"})
	switch {
	case brightness >= 0 && brightness <= 100:
		res.Set("brightness", strconv.Itoa(brightness))
		res.Confidence = 0.95
	case strings.Contains(text, "bright") || strings.Contains(text, "调亮") || strings.Contains(text, "变亮"):
		res.Set("relative", "increase")
		res.Confidence = 0.85
	case strings.Contains(text, "dark") || strings.Contains(text, "调暗") || strings.Contains(text, "变暗"):
		res.Set("relative", "decrease")
		res.Confidence = 0.85
	default:
		res.Set("brightness", "75")
		res.Confidence = 0.7
	}
}

func extractThemeParameters(text string, res *IntentResult) {
	if strings.Contains(text, "黑色主题") || strings.Contains(text, "黑夜模式") ||
		strings.Contains(text, "黑色字体") || strings.Contains(text, "黑色字幕") {
		res.Set("theme_name", "dark")
		res.Confidence = 0.95
		return
	}
	if strings.Contains(text, "白色主题") || strings.Contains(text, "白天模式") ||
		strings.Contains(text, "白色字体") || strings.Contains(text, "白色字幕") {
		res.Set("theme_name", "light")
		res.Confidence = 0.95
		return
	}
	res.Set("theme_name", "dark")
	res.Confidence = 0.7
}

func extractDisplayModeParameters(text string, res *IntentResult) {
	if strings.Contains(text, "表情包模式") || strings.Contains(text, "表情模式") ||
		strings.Contains(text, "情绪模式") || strings.Contains(text, "切换到表情包") ||
		strings.Contains(text, "emoji模式") ||
		(strings.Contains(text, "表情包") && (strings.Contains(text, "模式") || strings.Contains(text, "切换"))) {
		res.Action = "SetEmoticonMode"
		res.Confidence = 0.95
		return
	}
	if strings.Contains(text, "静态模式") || strings.Contains(text, "静态壁纸") || strings.Contains(text, "静态皮肤") {
		res.Action = "SetStaticMode"
		res.Confidence = 0.95
		return
	}
	if strings.Contains(text, "动态模式") || strings.Contains(text, "动态壁纸") || strings.Contains(text, "动态皮肤") {
		res.Action = "SetAnimatedMode"
		res.Confidence = 0.95
		return
	}
	res.Action = "SetAnimatedMode"
	res.Confidence = 0.7
}

func extractSubtitleParameters(text string, res *IntentResult) {
	if strings.Contains(text, "打开") || strings.Contains(text, "开启") || strings.Contains(text, "显示") {
		res.Action = "ShowSubtitle"
		res.Set("visible", "true")
		res.Confidence = 0.95
		return
	}
	if strings.Contains(text, "关闭") || strings.Contains(text, "隐藏") || strings.Contains(text, "关掉") {
		res.Action = "HideSubtitle"
		res.Set("visible", "false")
		res.Confidence = 0.95
		return
	}
	res.Action = "ToggleSubtitle"
	res.Confidence = 0.7
}
