// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package hook

// Lifecycle hooks.
const (
	PreBoot       = "pre-boot"
	PostBoot      = "post-boot"
	PluginsLoaded = "plugins-loaded"
)

// Interaction stage hooks, in the order the director fires them.
const (
	VoiceRecognition      = "voice-recognition"
	PreInteractionContext = "pre-interaction-context"
	PreInteraction        = "pre-interaction"
	Interaction           = "interaction"
	PostInteraction       = "post-interaction"
	TextToSpeech          = "text-to-speech"
	PreReturnData         = "pre-return-data"
)

// Context mutation hooks.
const (
	PreSetInputText    = "pre-set-input-text"
	PostSetInputText   = "post-set-input-text"
	PreSetInputAudio   = "pre-set-input-audio"
	PostSetInputAudio  = "post-set-input-audio"
	PreSetOutputText   = "pre-set-output-text"
	PostSetOutputText  = "post-set-output-text"
	PreSetOutputAudio  = "pre-set-output-audio"
	PostSetOutputAudio = "post-set-output-audio"
)

// Broadcast hooks.
const (
	PrePublish  = "pre-publish"
	Publish     = "publish"
	PostPublish = "post-publish"
)

// Logger hooks fire for every log record at or above the configured level.
// The payload is a *LogEntry.
const (
	LoggerDebug   = "logger-debug"
	LoggerInfo    = "logger-info"
	LoggerWarning = "logger-warning"
	LoggerError   = "logger-error"
	LoggerFatal   = "logger-fatal"
)

var known = []string{
	PreBoot, PostBoot, PluginsLoaded,
	VoiceRecognition, PreInteractionContext, PreInteraction, Interaction,
	PostInteraction, TextToSpeech, PreReturnData,
	PreSetInputText, PostSetInputText, PreSetInputAudio, PostSetInputAudio,
	PreSetOutputText, PostSetOutputText, PreSetOutputAudio, PostSetOutputAudio,
	PrePublish, Publish, PostPublish,
	LoggerDebug, LoggerInfo, LoggerWarning, LoggerError, LoggerFatal,
}

// Names returns every hook name fired by the runtime.
// The returned slice is a copy.
func Names() []string {
	out := make([]string, len(known))
	copy(out, known)
	return out
}

// IsKnown reports whether name is fired by the runtime.
func IsKnown(name string) bool {
	for _, n := range known {
		if n == name {
			return true
		}
	}
	return false
}
