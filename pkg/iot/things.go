package iot

import (
	"context"
	"fmt"
	"sync"
)

// Speaker is the built-in volume-control thing, mirroring the teacher's
// ServerPortTx.SetVolume and the intent matcher's VolumeControl target.
type Speaker struct {
	mu     sync.Mutex
	volume int
	onSet  func(volume int)
}

// NewSpeaker constructs a Speaker at volume 50. onSet, if non-nil, is called
// with the new volume whenever it changes (the board's hardware hook).
func NewSpeaker(onSet func(volume int)) *Speaker {
	return &Speaker{volume: 50, onSet: onSet}
}

func (s *Speaker) Name() string { return "Speaker" }

func (s *Speaker) Invoke(ctx context.Context, method string, params map[string]any) error {
	switch method {
	case "SetVolume":
		v, err := intParam(params, "volume")
		if err != nil {
			return err
		}
		v = clamp0to100(v)
		s.mu.Lock()
		s.volume = v
		s.mu.Unlock()
		if s.onSet != nil {
			s.onSet(v)
		}
		return nil
	default:
		return fmt.Errorf("iot: Speaker has no method %q", method)
	}
}

func (s *Speaker) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{"volume": s.volume}
}

// Screen is the built-in brightness/theme/display-mode thing, mirroring
// ServerPortTx.SetBrightness and the intent matcher's BrightnessControl,
// ThemeControl, and DisplayModeControl targets.
type Screen struct {
	mu          sync.Mutex
	brightness  int
	theme       string
	displayMode string
	onChange    func()
}

// NewScreen constructs a Screen at brightness 75, theme "dark", and the
// animated display mode (the intent matcher's documented defaults, §4.8).
func NewScreen(onChange func()) *Screen {
	return &Screen{brightness: 75, theme: "dark", displayMode: "animated", onChange: onChange}
}

func (s *Screen) Name() string { return "Screen" }

func (s *Screen) Invoke(ctx context.Context, method string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch method {
	case "SetBrightness":
		v, err := intParam(params, "brightness")
		if err != nil {
			return err
		}
		s.brightness = clamp0to100(v)
	case "SetTheme":
		name, err := stringParam(params, "theme_name")
		if err != nil {
			return err
		}
		s.theme = name
	case "SetStaticMode":
		s.displayMode = "static"
	case "SetAnimatedMode":
		s.displayMode = "animated"
	case "SetEmoticonMode":
		s.displayMode = "emoticon"
	default:
		return fmt.Errorf("iot: Screen has no method %q", method)
	}
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}

func (s *Screen) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"brightness":   s.brightness,
		"theme":        s.theme,
		"display_mode": s.displayMode,
	}
}

// SubtitleControl is the built-in subtitle-visibility thing, mirroring the
// intent matcher's SubtitleControl target.
type SubtitleControl struct {
	mu      sync.Mutex
	visible bool
}

// NewSubtitleControl constructs a SubtitleControl with subtitles hidden.
func NewSubtitleControl() *SubtitleControl {
	return &SubtitleControl{}
}

func (s *SubtitleControl) Name() string { return "SubtitleControl" }

func (s *SubtitleControl) Invoke(ctx context.Context, method string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch method {
	case "ShowSubtitle":
		s.visible = true
	case "HideSubtitle":
		s.visible = false
	case "ToggleSubtitle":
		s.visible = !s.visible
	default:
		return fmt.Errorf("iot: SubtitleControl has no method %q", method)
	}
	return nil
}

func (s *SubtitleControl) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{"visible": s.visible}
}
