// Package pipeline provides a fault-tolerant capture, transcribe, answer and
// display pipeline. The package coordinates external collaborators (capture
// sources, speech-to-text, classification, answer rendering and display),
// tracks their health and recovers them within a bounded retry policy.
//
// # Core Components
//
//   - BoundedQueue: non-blocking FIFO that drops the oldest entry when full
//   - HealthRegistry: per-component status records, the single update entry point
//   - HealthMonitor: periodic liveness polling, one isolated probe per component
//   - RecoveryEngine: cooldown and per-episode attempt limits around recovery actions
//   - FallbackChain: primary, secondary, tertiary and manual input selection
//   - AssistantPipelineManager: owns the queues and loops and enforces the confidence gate
//
// # Processing
//
// Every captured utterance moves through
//
//	Captured -> Transcribed -> Classified -> gate -> Answered -> Displayed
//
// and is dropped when its classification confidence is below the threshold.
// A collaborator error discards the item and reports the stage's component as
// failed. Items are never retried; components are.
//
// # Usage Example
//
//	config := pipeline.DefaultPipelineConfig()
//	logger, _ := pipeline.NewZapLogger(config.Logging)
//
//	manager, err := pipeline.NewAssistantPipelineManager(config, logger, pipeline.Collaborators{
//		Inputs: map[pipeline.InputMethod]pipeline.InputBinding{
//			pipeline.MethodPrimary: {Capture: mic},
//		},
//		Transcriber: whisper,
//		Classifier:  classifier,
//		Generator:   generator,
//		Display:     console,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := manager.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Stop()
//
// # Degraded Mode
//
// When a component exhausts its recovery attempts, or input falls back to
// manual entry, the pipeline enters StateDegraded and keeps serving whatever
// inputs remain. FullRecovery starts a new episode for every component and
// returns input to the primary method.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Loops communicate only
// through the queues and the registry.
package pipeline
