package health

import "github.com/rs/zerolog/log"

// IndicatorColor is the abstract state shown on the device's visual
// indicator.
type IndicatorColor string

const (
	IndicatorSolidAlert IndicatorColor = "solid-alert"
	IndicatorFallback   IndicatorColor = "fallback"
	IndicatorIssue      IndicatorColor = "issue"
	IndicatorOnline     IndicatorColor = "online"
	IndicatorOffline    IndicatorColor = "offline"
)

type Indicator interface {
	SetColor(color IndicatorColor)
}

// FallbackController switches the output into fallback content mode.
type FallbackController interface {
	SetFallbackMode(enabled bool)
}

// LogIndicator is used when no indicator hardware is attached.
type LogIndicator struct{}

func (LogIndicator) SetColor(color IndicatorColor) {
	log.Debug().Str("color", string(color)).Msg("Indicator color")
}

type LogFallback struct{}

func (LogFallback) SetFallbackMode(enabled bool) {
	log.Debug().Bool("enabled", enabled).Msg("Fallback mode")
}
