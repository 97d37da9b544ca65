package config

import "time"

// ChatConfig holds exchange timing. Durations are Go duration strings.
type ChatConfig struct {
	ResolveTimeout       string `yaml:"resolve_timeout"`        // Outer bound on finding the input
	ResolvePoll          string `yaml:"resolve_poll"`           // Delay between resolution rounds
	StrategyTimeout      string `yaml:"strategy_timeout"`       // Per-strategy bound, main document
	FrameStrategyTimeout string `yaml:"frame_strategy_timeout"` // Per-strategy bound, frames
	SubmitConfirm        string `yaml:"submit_confirm"`         // How long Enter gets before trying the send button
	SendButtonTimeout    string `yaml:"send_button_timeout"`
	InputClearTimeout    string `yaml:"input_clear_timeout"`
	InputClearPoll       string `yaml:"input_clear_poll"`
	ResponseTimeout      string `yaml:"response_timeout"`
	ResponsePoll         string `yaml:"response_poll"`
	StopCheckTimeout     string `yaml:"stop_check_timeout"`
	StabilityWindow      string `yaml:"stability_window"`
	MinAnswerLength      int    `yaml:"min_answer_length"`
	Yield                string `yaml:"yield"` // Pause between exchanges
}

// DefaultChatConfig returns the exchange defaults.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		ResolveTimeout:       "35s",
		ResolvePoll:          "500ms",
		StrategyTimeout:      "1500ms",
		FrameStrategyTimeout: "1s",
		SubmitConfirm:        "1500ms",
		SendButtonTimeout:    "2500ms",
		InputClearTimeout:    "8s",
		InputClearPoll:       "200ms",
		ResponseTimeout:      "70s",
		ResponsePoll:         "400ms",
		StopCheckTimeout:     "600ms",
		StabilityWindow:      "600ms",
		MinAnswerLength:      20,
		Yield:                "500ms",
	}
}

// ChatTimings is ChatConfig with every duration parsed.
type ChatTimings struct {
	ResolveTimeout       time.Duration
	ResolvePoll          time.Duration
	StrategyTimeout      time.Duration
	FrameStrategyTimeout time.Duration
	SubmitConfirm        time.Duration
	SendButtonTimeout    time.Duration
	InputClearTimeout    time.Duration
	InputClearPoll       time.Duration
	ResponseTimeout      time.Duration
	ResponsePoll         time.Duration
	StopCheckTimeout     time.Duration
	StabilityWindow      time.Duration
	Yield                time.Duration
}

// Timings parses the durations, substituting defaults for bad values.
func (c ChatConfig) Timings() ChatTimings {
	return ChatTimings{
		ResolveTimeout:       parseDuration(c.ResolveTimeout, 35*time.Second),
		ResolvePoll:          parseDuration(c.ResolvePoll, 500*time.Millisecond),
		StrategyTimeout:      parseDuration(c.StrategyTimeout, 1500*time.Millisecond),
		FrameStrategyTimeout: parseDuration(c.FrameStrategyTimeout, time.Second),
		SubmitConfirm:        parseDuration(c.SubmitConfirm, 1500*time.Millisecond),
		SendButtonTimeout:    parseDuration(c.SendButtonTimeout, 2500*time.Millisecond),
		InputClearTimeout:    parseDuration(c.InputClearTimeout, 8*time.Second),
		InputClearPoll:       parseDuration(c.InputClearPoll, 200*time.Millisecond),
		ResponseTimeout:      parseDuration(c.ResponseTimeout, 70*time.Second),
		ResponsePoll:         parseDuration(c.ResponsePoll, 400*time.Millisecond),
		StopCheckTimeout:     parseDuration(c.StopCheckTimeout, 600*time.Millisecond),
		StabilityWindow:      parseDuration(c.StabilityWindow, 600*time.Millisecond),
		Yield:                parseDuration(c.Yield, 500*time.Millisecond),
	}
}
