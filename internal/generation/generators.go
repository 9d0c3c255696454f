package generation

import (
	"log/slog"

	"rematrix/internal/config"
	"rematrix/internal/media"
	"rematrix/internal/services/llm"
	"rematrix/internal/stage"
)

// Generators builds the complete generator set for the pipeline: LLM-backed
// document stages plus the ffmpeg/browser-backed binary stages. A nil runner
// selects the real exec-based one.
func Generators(cfg *config.Config, client Completer, runner media.CommandRunner, logger *slog.Logger) map[stage.Stage]stage.Generator {
	if runner == nil {
		runner = media.NewRunner()
	}
	completer := func(stg stage.Stage) Completer {
		return stageCompleter(cfg, client, stg)
	}
	return map[stage.Stage]stage.Generator{
		stage.Plan:       newLLMGenerator(completer(stage.Plan), stage.Plan, planSystem, planUserPrompt, planContract, logger),
		stage.Outline:    newLLMGenerator(completer(stage.Outline), stage.Outline, outlineSystem, outlineUserPrompt, outlineContract, logger),
		stage.Storyboard: newLLMGenerator(completer(stage.Storyboard), stage.Storyboard, storyboardSystem, storyboardUserPrompt, storyboardContract, logger),
		stage.Narration:  newLLMGenerator(completer(stage.Narration), stage.Narration, narrationSystem, narrationUserPrompt, narrationContract, logger),
		stage.Pages:      newLLMGenerator(completer(stage.Pages), stage.Pages, pagesSystem, pagesUserPrompt, pagesContract, logger),
		stage.TTS:        newTTSGenerator(cfg, runner, logger),
		stage.Render:     newRenderGenerator(cfg, runner, logger),
		stage.Merge:      newMergeGenerator(cfg, runner, logger),
	}
}

// stageCompleter applies per-stage model/temperature overrides from config.
// Only the concrete LLM client can carry an override onto the wire; other
// Completer implementations are returned as-is.
func stageCompleter(cfg *config.Config, client Completer, stg stage.Stage) Completer {
	override, ok := cfg.LLM.Stages[string(stg)]
	if !ok || (override.Model == "" && override.Temperature == nil) {
		return client
	}
	base, ok := client.(*llm.Client)
	if !ok {
		return client
	}
	return base.ForStage(override.Model, override.Temperature)
}
