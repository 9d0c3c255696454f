package config

const (
	defaultDataDir                   = "~/.local/share/rematrix"
	defaultWorkDir                   = "~/.local/share/rematrix/work"
	defaultLogDir                    = "~/.local/share/rematrix/logs"
	defaultAPIBind                   = "127.0.0.1:7512"
	defaultLLMBaseURL                = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                  = "google/gemini-3-flash-preview"
	defaultLLMReferer                = "https://github.com/rematrix/rematrix"
	defaultLLMTitle                  = "Rematrix"
	defaultLLMTemperature            = 0.7
	defaultLLMTimeoutSeconds         = 120
	defaultTTSSecondsPerPage         = 8
	defaultTTSSampleRate             = 44100
	defaultRenderWidth               = 1280
	defaultRenderHeight              = 720
	defaultMergeFrameRate            = 30
	defaultMergeSecondsPerFrame      = 1
	defaultBlobRequestTimeout        = 30
	defaultWorkflowErrorRetry        = 10
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultNtfyRequestTimeout        = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			Temperature:    defaultLLMTemperature,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTS: TTS{
			SecondsPerPage: defaultTTSSecondsPerPage,
			SampleRate:     defaultTTSSampleRate,
		},
		Render: Render{
			Width:  defaultRenderWidth,
			Height: defaultRenderHeight,
		},
		Merge: Merge{
			FrameRate:       defaultMergeFrameRate,
			SecondsPerFrame: defaultMergeSecondsPerFrame,
		},
		Blob: Blob{
			RequestTimeout: defaultBlobRequestTimeout,
		},
		Workflow: Workflow{
			ErrorRetryInterval: defaultWorkflowErrorRetry,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
