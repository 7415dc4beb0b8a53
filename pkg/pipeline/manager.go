package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// InputBinding attaches a capture source to one step of the fallback chain.
// Transcriber overrides the pipeline transcriber for this source.
type InputBinding struct {
	Capture     Capture
	Transcriber Transcriber
}

// Collaborators are the external services coordinated by the pipeline
type Collaborators struct {
	Inputs      map[InputMethod]InputBinding
	Transcriber Transcriber
	Classifier  Classifier
	Generator   AnswerGenerator
	Display     Display
	Security    SecurityMonitor
}

// StatusReport is a point-in-time view of the pipeline
type StatusReport struct {
	PipelineID  string               `json:"pipeline_id"`
	State       PipelineState        `json:"state"`
	Overall     OverallStatus        `json:"overall"`
	InputMethod InputMethod          `json:"input_method"`
	Components  []ComponentRecord    `json:"components"`
	Metrics     map[string]int64     `json:"metrics"`
	QueueDepths map[string]int       `json:"queue_depths"`
	Transitions []FallbackTransition `json:"transitions"`
	Telemetry   CollectorSnapshot    `json:"telemetry"`
	StartedAt   time.Time            `json:"started_at"`
	Uptime      string               `json:"uptime"`
}

// TranscriberComponent returns the registry name of a transcriber bound to a single input
func TranscriberComponent(m InputMethod) string {
	return ComponentTranscriber + "." + m.String()
}

// AssistantPipelineManager is the central coordinator of the
// capture, transcribe, classify, answer and display pipeline
type AssistantPipelineManager struct {
	// Configuration
	config *PipelineConfig
	collab Collaborators

	// Health and recovery
	registry *HealthRegistry
	monitor  *HealthMonitor
	recovery *RecoveryEngine
	chain    *FallbackChain

	// Queues
	transcriptions *BoundedQueue[WorkItem]
	responses      *BoundedQueue[Answer]

	// State management
	state      PipelineState
	stateMutex sync.RWMutex

	// Monitoring and logging
	metrics   *Metrics
	collector *PipelineMetricsCollector
	events    *EventLog
	logger    Logger

	// Goroutine management
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	setupOnce sync.Once
	setupErr  error

	// Pipeline metadata
	pipelineID string
	startTime  time.Time
}

// NewAssistantPipelineManager creates a pipeline manager over the given collaborators
func NewAssistantPipelineManager(config *PipelineConfig, logger Logger, collab Collaborators) (*AssistantPipelineManager, error) {
	if config == nil {
		config = DefaultPipelineConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateCollaborators(collab); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = DefaultLogger()
	}

	pipelineID := uuid.New().String()
	logger = logger.With(String("pipeline_id", pipelineID))

	methods := make([]InputMethod, 0, len(collab.Inputs))
	for method := range collab.Inputs {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })

	metrics := NewMetrics()
	collector := NewPipelineMetricsCollector(pipelineID, logger)
	events := NewEventLog(config.Events.HistorySize, logger.With(String("component", "events")))
	registry := NewHealthRegistry(config.Recovery.Enabled, config.Recovery.SignalBuffer, logger)
	recovery := NewRecoveryEngine(registry, config.Recovery, metrics, events, logger)
	recovery.SetCollector(collector)

	manager := &AssistantPipelineManager{
		config:         config,
		collab:         collab,
		registry:       registry,
		monitor:        NewHealthMonitor(registry, config.Health, metrics, logger),
		recovery:       recovery,
		chain:          NewFallbackChain(config.Fallback.FailureThreshold, methods, logger),
		transcriptions: NewBoundedQueue[WorkItem](config.Queue.TranscriptionCapacity),
		responses:      NewBoundedQueue[Answer](config.Queue.ResponseCapacity),
		state:          StateIdle,
		metrics:        metrics,
		collector:      collector,
		events:         events,
		logger:         logger.With(String("component", "pipeline_manager")),
		pipelineID:     pipelineID,
	}

	manager.logger.Info("Created new assistant pipeline manager",
		Any("input_methods", manager.chain.Methods()),
		Any("config", config),
	)

	return manager, nil
}

func validateCollaborators(collab Collaborators) error {
	var missing []string

	if collab.Classifier == nil {
		missing = append(missing, "classifier")
	}
	if collab.Generator == nil {
		missing = append(missing, "answer generator")
	}
	if collab.Display == nil {
		missing = append(missing, "display")
	}

	for method, binding := range collab.Inputs {
		if method == MethodManual {
			missing = append(missing, "manual input cannot be bound to a capture")
			continue
		}
		if binding.Capture == nil {
			missing = append(missing, fmt.Sprintf("capture for %s input", method))
		}
		if binding.Transcriber == nil && collab.Transcriber == nil {
			missing = append(missing, fmt.Sprintf("transcriber for %s input", method))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("invalid collaborators: %v", missing)
	}
	return nil
}

// Start registers every component, starts the capture sources and runs the
// health monitor, recovery dispatcher and processing loops until Stop.
func (apm *AssistantPipelineManager) Start(ctx context.Context) error {
	apm.stateMutex.Lock()
	if apm.state != StateIdle {
		state := apm.state
		apm.stateMutex.Unlock()
		return fmt.Errorf("%w: current state %s", ErrPipelineRunning, state)
	}
	apm.startTime = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	apm.cancel = cancel
	apm.changeState(StateInitializing, "pipeline start requested")
	apm.stateMutex.Unlock()

	apm.setupOnce.Do(func() {
		apm.setupErr = apm.setup()
	})
	if apm.setupErr != nil {
		cancel()
		apm.stateMutex.Lock()
		apm.changeState(StateIdle, "initialization failed")
		apm.stateMutex.Unlock()
		return fmt.Errorf("failed to initialize pipeline: %w", apm.setupErr)
	}

	apm.startCaptures(runCtx)

	if apm.config.Health.Enabled {
		apm.monitor.Start(runCtx)
	}

	if apm.config.Recovery.Enabled {
		apm.spawn(func() { apm.recovery.Run(runCtx) })
	}

	apm.spawn(func() { apm.captureLoop(runCtx) })
	apm.spawn(func() { apm.processingLoop(runCtx) })
	apm.spawn(func() { apm.displayLoop(runCtx) })

	apm.stateMutex.Lock()
	if apm.state == StateInitializing {
		apm.changeState(StateRunning, "initialization complete")
	}
	apm.stateMutex.Unlock()

	if apm.chain.Current() == MethodManual {
		apm.enterDegraded("no capture input available, manual input only")
	}

	apm.logger.Info("Pipeline started", String("input_method", apm.chain.Current().String()))
	return nil
}

// Stop signals every loop to exit and waits for them, bounded by the shutdown
// timeout. Calling Stop on an idle pipeline is a no-op.
func (apm *AssistantPipelineManager) Stop() error {
	apm.stateMutex.Lock()
	if apm.state == StateIdle || apm.state == StateStopping {
		apm.stateMutex.Unlock()
		return nil
	}
	apm.changeState(StateStopping, "stop requested")
	cancel := apm.cancel
	apm.stateMutex.Unlock()

	apm.logger.Info("Stopping assistant pipeline")

	if cancel != nil {
		cancel()
	}
	apm.monitor.Stop()

	var stopErr error
	done := make(chan struct{})
	go func() {
		apm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(apm.config.Processing.ShutdownTimeout):
		stopErr = fmt.Errorf("%w after %s", ErrShutdownTimeout, apm.config.Processing.ShutdownTimeout)
		apm.logger.Error("Pipeline loops did not stop in time", Error(stopErr))
	}

	apm.stopCaptures()

	hideCtx, hideCancel := context.WithTimeout(context.Background(), apm.config.Processing.RenderBudget)
	if _, err := invokeStage(hideCtx, apm.config.Processing.RenderBudget, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, apm.collab.Display.Hide(ctx)
	}); err != nil {
		apm.logger.Warn("Failed to hide display", Error(err))
	}
	hideCancel()

	pending := len(apm.transcriptions.Drain())
	undelivered := len(apm.responses.Drain())

	apm.stateMutex.Lock()
	apm.changeState(StateIdle, "pipeline stopped")
	apm.stateMutex.Unlock()

	apm.logger.Info("Pipeline stopped",
		Int("discarded_items", pending),
		Int("discarded_answers", undelivered),
		Any("metrics", apm.metrics.Snapshot()),
		Duration("uptime", apm.GetUptime()),
	)

	return stopErr
}

// SubmitManualInput queues user-typed text. It skips capture and
// transcription and carries full transcription confidence.
func (apm *AssistantPipelineManager) SubmitManualInput(text string) error {
	if !apm.isActive() {
		return ErrPipelineNotRunning
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	apm.enqueue(WorkItem{
		ID:              uuid.New().String(),
		Text:            text,
		Confidence:      1.0,
		SourceTimestamp: time.Now(),
		Method:          MethodManual,
	})

	apm.logger.Debug("Manual input queued", Int("length", utf8.RuneCountInString(text)))
	return nil
}

// FullRecovery starts a fresh recovery episode for every component and
// moves the input chain back to its first method.
func (apm *AssistantPipelineManager) FullRecovery(reason string) error {
	if !apm.isActive() {
		return ErrPipelineNotRunning
	}

	if reason == "" {
		reason = "full recovery requested"
	}

	stillFailed := apm.registry.ResetAll()
	apm.chain.ResetToPrimary(reason)

	apm.stateMutex.Lock()
	if apm.state == StateDegraded {
		apm.changeState(StateRunning, reason)
	}
	apm.stateMutex.Unlock()

	apm.events.Record(NewEvent(EventFullRecovery, "", "Full system recovery").
		WithField("reason", reason).
		WithField("still_failed", stillFailed))

	return nil
}

// GetState returns the current pipeline state
func (apm *AssistantPipelineManager) GetState() PipelineState {
	apm.stateMutex.RLock()
	defer apm.stateMutex.RUnlock()
	return apm.state
}

// Status returns a snapshot of the pipeline and its components
func (apm *AssistantPipelineManager) Status() StatusReport {
	apm.stateMutex.RLock()
	state := apm.state
	started := apm.startTime
	apm.stateMutex.RUnlock()

	apm.collector.RecordQueueDepth("transcription", apm.transcriptions.Len())
	apm.collector.RecordQueueDepth("response", apm.responses.Len())

	return StatusReport{
		PipelineID:  apm.pipelineID,
		State:       state,
		Overall:     apm.registry.OverallStatus(),
		InputMethod: apm.chain.Current(),
		Components:  apm.registry.GetAll(),
		Metrics:     apm.metrics.Snapshot(),
		QueueDepths: map[string]int{
			"transcription": apm.transcriptions.Len(),
			"response":      apm.responses.Len(),
		},
		Transitions: apm.chain.Transitions(),
		Telemetry:   apm.collector.Snapshot(),
		StartedAt:   started,
		Uptime:      apm.GetUptime().Round(time.Second).String(),
	}
}

// Events returns up to limit of the most recent events
func (apm *AssistantPipelineManager) Events(limit int) []Event {
	return apm.events.Recent(limit)
}

// GetMetrics returns the pipeline counters
func (apm *AssistantPipelineManager) GetMetrics() *Metrics {
	return apm.metrics
}

// Registry exposes the component health registry
func (apm *AssistantPipelineManager) Registry() *HealthRegistry {
	return apm.registry
}

// IsHealthy returns whether the pipeline runs with every component healthy
func (apm *AssistantPipelineManager) IsHealthy() bool {
	return apm.GetState() == StateRunning && apm.registry.OverallStatus() == OverallHealthy
}

// GetPipelineID returns the unique pipeline identifier
func (apm *AssistantPipelineManager) GetPipelineID() string {
	return apm.pipelineID
}

// GetUptime returns how long the pipeline has been running
func (apm *AssistantPipelineManager) GetUptime() time.Duration {
	apm.stateMutex.RLock()
	defer apm.stateMutex.RUnlock()
	if apm.startTime.IsZero() || apm.state == StateIdle {
		return 0
	}
	return time.Since(apm.startTime)
}

// setup registers components, probes and recovery actions. It runs once per manager.
func (apm *AssistantPipelineManager) setup() error {
	for _, method := range apm.chain.Methods() {
		if method == MethodManual {
			continue
		}
		binding := apm.collab.Inputs[method]
		capture := binding.Capture

		name := CaptureComponent(method)
		if err := apm.monitor.Register(name, func(ctx context.Context) bool {
			return capture.IsCapturing()
		}); err != nil {
			return err
		}
		if err := apm.recovery.RegisterStrategy(name, captureRecovery(capture)); err != nil {
			return err
		}

		if binding.Transcriber != nil {
			if err := apm.registerCollaborator(TranscriberComponent(method), binding.Transcriber); err != nil {
				return err
			}
		}
	}

	if apm.collab.Transcriber != nil {
		if err := apm.registerCollaborator(ComponentTranscriber, apm.collab.Transcriber); err != nil {
			return err
		}
	}
	if err := apm.registerCollaborator(ComponentClassifier, apm.collab.Classifier); err != nil {
		return err
	}
	if err := apm.registerCollaborator(ComponentGenerator, apm.collab.Generator); err != nil {
		return err
	}
	if err := apm.registerCollaborator(ComponentDisplay, apm.collab.Display); err != nil {
		return err
	}
	if apm.collab.Security != nil {
		if err := apm.registerCollaborator(apm.collab.Security.Name(), apm.collab.Security); err != nil {
			return err
		}
	}

	apm.registry.AddListener(apm.onComponentChange)
	apm.chain.OnTransition(apm.onFallbackTransition)
	apm.recovery.OnGiveUp(apm.onGiveUp)

	apm.logger.Info("Pipeline components registered", Any("components", apm.registry.Names()))
	return nil
}

// registerCollaborator registers a stage collaborator. Its probe and recovery
// action come from the optional HealthChecker and Restarter interfaces;
// collaborators without Restart recover by clearing the failure.
func (apm *AssistantPipelineManager) registerCollaborator(name string, collaborator interface{}) error {
	var probe LivenessProbe
	if checker, ok := collaborator.(HealthChecker); ok {
		probe = checker.Healthy
	}
	if err := apm.monitor.Register(name, probe); err != nil {
		return err
	}

	action := RecoveryAction(func(ctx context.Context) bool { return true })
	if restarter, ok := collaborator.(Restarter); ok {
		action = func(ctx context.Context) bool {
			return restarter.Restart(ctx) == nil
		}
	}
	return apm.recovery.RegisterStrategy(name, action)
}

func captureRecovery(capture Capture) RecoveryAction {
	if restarter, ok := capture.(Restarter); ok {
		return func(ctx context.Context) bool {
			return restarter.Restart(ctx) == nil
		}
	}
	return func(ctx context.Context) bool {
		_ = capture.Stop()
		if err := capture.Start(ctx); err != nil {
			return false
		}
		return capture.IsCapturing()
	}
}

func (apm *AssistantPipelineManager) startCaptures(ctx context.Context) {
	for _, method := range apm.chain.Methods() {
		if method == MethodManual {
			continue
		}
		capture := apm.collab.Inputs[method].Capture
		if err := capture.Start(ctx); err != nil {
			apm.logger.Warn("Capture failed to start",
				String("input_method", method.String()),
				String("capture", capture.Name()),
				Error(err),
			)
			apm.reportFailure(CaptureComponent(method), NewStageError(StageCapture, CaptureComponent(method), err))
		}
	}
}

func (apm *AssistantPipelineManager) stopCaptures() {
	for _, method := range apm.chain.Methods() {
		if method == MethodManual {
			continue
		}
		capture := apm.collab.Inputs[method].Capture
		if err := capture.Stop(); err != nil {
			apm.logger.Warn("Capture failed to stop", String("capture", capture.Name()), Error(err))
		}
	}
}

func (apm *AssistantPipelineManager) spawn(fn func()) {
	apm.wg.Add(1)
	go func() {
		defer apm.wg.Done()
		fn()
	}()
}

// captureLoop pulls data from the current input, transcribes it and queues work items
func (apm *AssistantPipelineManager) captureLoop(ctx context.Context) {
	apm.logger.Debug("Starting capture loop")
	defer apm.logger.Debug("Capture loop stopped")

	ticker := time.NewTicker(apm.config.Processing.CaptureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			apm.captureOnce(ctx)
		}
	}
}

func (apm *AssistantPipelineManager) captureOnce(ctx context.Context) {
	method := apm.chain.Current()
	if method == MethodManual {
		return
	}

	binding := apm.collab.Inputs[method]
	captureName := CaptureComponent(method)

	data, err := invokeStage(ctx, apm.config.Processing.StageTimeout, func(context.Context) ([]byte, error) {
		return binding.Capture.PullAvailableData(), nil
	})
	if err != nil {
		// the registry listener counts capture failures toward the chain
		apm.handleStageError(ctx, StageCapture, captureName, "", err)
		return
	}
	if len(data) == 0 {
		return
	}

	transcriber, transcriberName := apm.collab.Transcriber, ComponentTranscriber
	if binding.Transcriber != nil {
		transcriber, transcriberName = binding.Transcriber, TranscriberComponent(method)
	}

	start := time.Now()
	result, err := invokeStage(ctx, apm.config.Processing.StageTimeout, func(stageCtx context.Context) (Transcription, error) {
		return transcriber.Transcribe(stageCtx, data)
	})
	apm.collector.RecordStageLatency(StageTranscribe, time.Since(start))
	if err != nil {
		apm.handleStageError(ctx, StageTranscribe, transcriberName, "", err)
		apm.chain.ReportFailure("transcription failed: " + err.Error())
		return
	}

	apm.chain.ReportSuccess()

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return
	}

	apm.enqueue(WorkItem{
		ID:              uuid.New().String(),
		Text:            text,
		Confidence:      result.Confidence,
		SourceTimestamp: start,
		Method:          method,
	})
}

func (apm *AssistantPipelineManager) enqueue(item WorkItem) {
	if apm.transcriptions.Push(item) {
		apm.metrics.Inc(QueueOverflows)
		apm.metrics.Inc(ItemsDropped)
		apm.events.Record(NewEvent(EventQueueOverflow, "", ErrQueueOverflow.Error()).
			WithField("queue", "transcription"))
	}
}

// processingLoop drains the transcription queue through classification and answering
func (apm *AssistantPipelineManager) processingLoop(ctx context.Context) {
	apm.logger.Debug("Starting processing loop")
	defer apm.logger.Debug("Processing loop stopped")

	ticker := time.NewTicker(apm.config.Processing.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for ctx.Err() == nil {
				item, ok := apm.transcriptions.Pop()
				if !ok {
					break
				}
				apm.processItem(ctx, item)
			}
		}
	}
}

// processItem moves one item from Transcribed to Answered. The item is
// discarded on the first error; items are never retried.
func (apm *AssistantPipelineManager) processItem(ctx context.Context, item WorkItem) {
	text := strings.TrimSpace(item.Text)
	if utf8.RuneCountInString(text) < apm.config.Gate.MinTextLength {
		apm.metrics.Inc(ItemsDropped)
		apm.logger.Debug("Dropping short input", String("item_id", item.ID), Int("length", utf8.RuneCountInString(text)))
		return
	}

	start := time.Now()
	classification, err := invokeStage(ctx, apm.config.Processing.StageTimeout, func(stageCtx context.Context) (Classification, error) {
		return apm.collab.Classifier.Classify(stageCtx, text)
	})
	apm.collector.RecordStageLatency(StageClassify, time.Since(start))
	if err != nil {
		apm.handleStageError(ctx, StageClassify, ComponentClassifier, item.ID, err)
		return
	}

	apm.metrics.Inc(ItemsProcessed)

	if !apm.passesGate(classification.Confidence) {
		apm.metrics.Inc(ItemsDropped)
		apm.logger.Debug("Item below confidence threshold",
			String("item_id", item.ID),
			String("category", classification.Category),
			Float64("confidence", classification.Confidence),
			Float64("threshold", apm.config.Gate.ConfidenceThreshold),
		)
		return
	}

	start = time.Now()
	answer, err := invokeStage(ctx, apm.config.Processing.StageTimeout, func(stageCtx context.Context) (Answer, error) {
		return apm.collab.Generator.Generate(stageCtx, classification, text)
	})
	apm.collector.RecordStageLatency(StageAnswer, time.Since(start))
	if err != nil {
		apm.handleStageError(ctx, StageAnswer, ComponentGenerator, item.ID, err)
		return
	}

	answer.ItemID = item.ID
	if answer.Question == "" {
		answer.Question = text
	}
	if answer.Category == "" {
		answer.Category = classification.Category
	}
	if answer.Confidence == 0 {
		answer.Confidence = classification.Confidence
	}
	if answer.GeneratedAt.IsZero() {
		answer.GeneratedAt = time.Now()
	}

	if apm.responses.Push(answer) {
		apm.metrics.Inc(QueueOverflows)
		apm.events.Record(NewEvent(EventQueueOverflow, "", ErrQueueOverflow.Error()).
			WithField("queue", "response"))
	}
	apm.metrics.Inc(ItemsAnswered)
}

// passesGate reports whether a classification is confident enough to answer.
// Confidence equal to the threshold passes.
func (apm *AssistantPipelineManager) passesGate(confidence float64) bool {
	return confidence >= apm.config.Gate.ConfidenceThreshold
}

// displayLoop hands queued answers to the display within the render budget
func (apm *AssistantPipelineManager) displayLoop(ctx context.Context) {
	apm.logger.Debug("Starting display loop")
	defer apm.logger.Debug("Display loop stopped")

	ticker := time.NewTicker(apm.config.Processing.DisplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for ctx.Err() == nil {
				answer, ok := apm.responses.Pop()
				if !ok {
					break
				}
				apm.show(ctx, answer)
			}
		}
	}
}

func (apm *AssistantPipelineManager) show(ctx context.Context, answer Answer) {
	start := time.Now()
	_, err := invokeStage(ctx, apm.config.Processing.RenderBudget, func(stageCtx context.Context) (struct{}, error) {
		return struct{}{}, apm.collab.Display.Show(stageCtx, answer)
	})
	apm.collector.RecordStageLatency(StageDisplay, time.Since(start))
	if err != nil {
		apm.handleStageError(ctx, StageDisplay, ComponentDisplay, answer.ItemID, err)
	}
}

// handleStageError converts a collaborator failure into a registry update.
// Failures caused by shutdown are ignored.
func (apm *AssistantPipelineManager) handleStageError(ctx context.Context, stage Stage, component, itemID string, err error) {
	if ctx.Err() != nil {
		return
	}

	stageErr := NewStageError(stage, component, err)
	stageErr.ItemID = itemID

	if itemID != "" {
		apm.metrics.Inc(ItemsFailed)
	}
	apm.collector.RecordError(stage, component)

	apm.events.Record(NewEvent(EventStageFailure, component, stageErr.Error()).
		WithField("stage", string(stage)).
		WithField("item_id", itemID))

	apm.reportFailure(component, stageErr)
}

func (apm *AssistantPipelineManager) reportFailure(component string, err error) {
	if reportErr := apm.registry.ReportStatus(component, StatusFailed, err); reportErr != nil {
		apm.logger.Error("Failed to report component failure",
			String("name", component),
			Error(reportErr),
		)
	}
}

// onComponentChange keeps the fallback chain in step with the health of the current capture
func (apm *AssistantPipelineManager) onComponentChange(change ComponentChange) {
	if change.From != change.To {
		apm.events.Record(NewEvent(EventComponentStatus, change.Name, "Component status changed").
			WithField("from", change.From.String()).
			WithField("to", change.To.String()).
			WithField("source", string(change.Source)))
	}

	if change.Source != SourceReport {
		return
	}

	current := apm.chain.Current()
	if current == MethodManual || change.Name != CaptureComponent(current) {
		return
	}

	switch change.Reported {
	case StatusFailed:
		reason := "capture liveness check failed"
		if change.Error != "" {
			reason = change.Error
		}
		apm.chain.ReportFailure(reason)
	case StatusHealthy:
		apm.chain.ReportSuccess()
	}
}

func (apm *AssistantPipelineManager) onFallbackTransition(transition FallbackTransition) {
	apm.events.Record(NewEvent(EventFallbackTransition, CaptureComponent(transition.From), "Input method changed").
		WithField("from", transition.From.String()).
		WithField("to", transition.To.String()).
		WithField("reason", transition.Reason))

	if transition.To == MethodManual {
		apm.enterDegraded("input fell back to manual entry")
	}
}

func (apm *AssistantPipelineManager) onGiveUp(name string, attempts int) {
	apm.enterDegraded(fmt.Sprintf("recovery of %s exhausted after %d attempts", name, attempts))
}

// enterDegraded surfaces degraded mode. The pipeline keeps serving whatever
// inputs remain.
func (apm *AssistantPipelineManager) enterDegraded(reason string) {
	apm.stateMutex.Lock()
	if apm.state == StateRunning {
		apm.changeState(StateDegraded, reason)
	}
	apm.stateMutex.Unlock()

	apm.events.Record(NewEvent(EventDegradedMode, "", "Pipeline running in degraded mode").
		WithField("reason", reason))
}

func (apm *AssistantPipelineManager) isActive() bool {
	state := apm.GetState()
	return state == StateRunning || state == StateDegraded
}

// changeState changes the pipeline state. Callers hold stateMutex.
func (apm *AssistantPipelineManager) changeState(newState PipelineState, reason string) {
	oldState := apm.state
	if oldState == newState {
		return
	}
	apm.state = newState

	change := StateChange{
		From:      oldState,
		To:        newState,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	apm.logger.Info("Pipeline state changed",
		String("from", oldState.String()),
		String("to", newState.String()),
		String("reason", reason),
	)

	// Record state change metric
	apm.collector.RecordStateChange(oldState, newState)

	apm.events.Record(NewEvent(EventStateChange, "", "Pipeline state changed").
		WithField("from", change.From.String()).
		WithField("to", change.To.String()).
		WithField("reason", change.Reason))
}

// invokeStage runs a collaborator call with a deadline. A panic or a missed
// deadline becomes an error; a call that ignores ctx keeps its goroutine until it returns.
func invokeStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (result T, err error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("collaborator panicked: %v", r)}
			}
		}()
		value, err := fn(stageCtx)
		ch <- outcome{value: value, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return o.value, fmt.Errorf("%w after %s: %v", ErrStageTimeout, timeout, o.err)
		}
		return o.value, o.err
	case <-stageCtx.Done():
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%w after %s", ErrStageTimeout, timeout)
		}
		return result, stageCtx.Err()
	}
}
