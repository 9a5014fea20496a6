// Package coordinator drives federated training jobs: one round loop per
// active job, device selection and reservation, gradient collection,
// aggregation, evaluation and checkpointing.
package coordinator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/arch"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/codec"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/container"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/eval"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/fedavg"
	"github.com/edgeorchestra/edgeorchestra/internal/heartbeat"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/metrics"
	"github.com/edgeorchestra/edgeorchestra/internal/scheduler"
)

// Store is the slice of the persistent repositories the coordinator uses.
type Store interface {
	GetJob(id uuid.UUID) (*domain.TrainingJob, error)
	ListJobs(status domain.JobStatus) ([]domain.TrainingJob, error)
	UpdateJobStatus(id uuid.UUID, status domain.JobStatus) error
	CompleteJob(id uuid.UUID, status domain.JobStatus) error
	SetJobRound(id uuid.UUID, round int) error
	SetJobMetrics(id uuid.UUID, m *domain.RoundMetrics) error

	SetJobModel(id, modelID uuid.UUID) error

	GetModel(id uuid.UUID) (*domain.Model, error)
	CreateModel(m *domain.Model) error
	UpdateModelVersion(id uuid.UUID, version int) error
	UpdateModelStatus(id uuid.UUID, status domain.ModelStatus) error

	GetDevice(id uuid.UUID) (*domain.Device, error)
	ListDevices(status domain.DeviceStatus) ([]domain.Device, error)
	UpdateDeviceStatus(id uuid.UUID, status domain.DeviceStatus) error
}

// Config bounds the coordinator's waits and retries.
type Config struct {
	PollInterval time.Duration // how often new/orphaned jobs are adopted
	RoundTimeout time.Duration // gradient collection deadline per round
	GradientPoll time.Duration // bucket poll cadence during collection
	WaitAttempts int           // device-wait loop attempts before failing
	RoundRetries int           // re-dispatches of an empty round
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		RoundTimeout: 180 * time.Second,
		GradientPoll: 2 * time.Second,
		WaitAttempts: 30,
		RoundRetries: 2,
	}
}

// Coordinator owns the active-job set and one round-loop goroutine per
// running job.
type Coordinator struct {
	store     Store
	blobs     blob.Store
	monitor   *heartbeat.Monitor
	adapter   container.Binary
	evaluator *eval.Evaluator
	cfg       Config
	log       zerolog.Logger
	backoff   func(attempt int) time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
	wg     sync.WaitGroup
}

// New assembles a coordinator.
func New(store Store, blobs blob.Store, monitor *heartbeat.Monitor, evaluator *eval.Evaluator, cfg Config, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		blobs:     blobs,
		monitor:   monitor,
		adapter:   container.NewBinary(),
		evaluator: evaluator,
		cfg:       cfg,
		log:       log.With().Str("component", "coordinator").Logger(),
		backoff:   waitBackoff,
		active:    make(map[uuid.UUID]struct{}),
	}
}

// Run polls for pending jobs and re-owns running jobs left over from a
// previous process, until ctx is canceled. It blocks; callers run it in
// a goroutine and wait for the returned drain on shutdown.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.adoptJobs(ctx)
	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return
		case <-ticker.C:
			c.adoptJobs(ctx)
		}
	}
}

// adoptJobs starts round loops for pending jobs and for running jobs not
// already in the active set (crash recovery).
func (c *Coordinator) adoptJobs(ctx context.Context) {
	for _, status := range []domain.JobStatus{domain.JobPending, domain.JobRunning} {
		jobs, err := c.store.ListJobs(status)
		if err != nil {
			c.log.Error().Err(err).Msg("list jobs failed")
			return
		}
		for i := range jobs {
			c.startJob(ctx, jobs[i])
		}
	}
}

// startJob launches the round loop unless the job is already owned.
func (c *Coordinator) startJob(ctx context.Context, job domain.TrainingJob) {
	c.mu.Lock()
	if _, ok := c.active[job.ID]; ok {
		c.mu.Unlock()
		return
	}
	c.active[job.ID] = struct{}{}
	c.mu.Unlock()

	if job.Status == domain.JobRunning {
		c.log.Warn().Str("job", job.ID.String()).Int("current_round", job.CurrentRound).
			Msg("re-owning running job")
	}

	c.wg.Add(1)
	metrics.TrainingJobsActive.Inc()
	go func() {
		defer func() {
			metrics.TrainingJobsActive.Dec()
			c.mu.Lock()
			delete(c.active, job.ID)
			c.mu.Unlock()
			c.wg.Done()
		}()
		if err := c.runJob(ctx, job); err != nil {
			c.log.Error().Err(err).Str("job", job.ID.String()).Msg("job failed")
		}
	}()
}

// StopJob raises the job's stop flag. The round loop consumes it at the
// next boundary.
func (c *Coordinator) StopJob(ctx context.Context, jobID uuid.UUID) error {
	return c.blobs.Set(ctx, blob.StopFlagKey(jobID.String()), "1")
}

// runJob executes the round loop for one job. Reserved devices are
// always released on exit, whatever the path.
func (c *Coordinator) runJob(ctx context.Context, job domain.TrainingJob) error {
	log := c.log.With().Str("job", job.ID.String()).Logger()

	if job.Status == domain.JobPending {
		if err := c.store.UpdateJobStatus(job.ID, domain.JobRunning); err != nil {
			return err
		}
	}

	modelKey, a, err := c.prepareModel(ctx, &job, log)
	if err != nil {
		c.failUnlessCanceled(ctx, &job, modelKey, log, err)
		return err
	}

	var reserved []uuid.UUID
	defer func() { c.releaseDevices(reserved) }()

	rounds := &domain.RoundMetrics{}
	if job.RoundMetrics != nil {
		rounds = job.RoundMetrics
	}

	for r := job.CurrentRound + 1; r <= job.NumRounds; r++ {
		if stopped, err := c.consumeStopFlag(ctx, &job, modelKey, log); err != nil || stopped {
			return err
		}

		// Checkpoint before any dispatch so a crash resumes here.
		if err := c.store.SetJobRound(job.ID, r); err != nil {
			c.failUnlessCanceled(ctx, &job, modelKey, log, err)
			return err
		}

		selected, stopped, err := c.waitForDevices(ctx, &job, modelKey, log)
		if err != nil || stopped {
			if err != nil {
				c.failUnlessCanceled(ctx, &job, modelKey, log, err)
			}
			return err
		}
		if selected == nil {
			// Wait loop exhausted: the pool never recovered.
			log.Error().Int("round", r).Msg("device wait exhausted")
			c.failJob(ctx, &job, modelKey, log, nil)
			return nil
		}

		reserved = reserved[:0]
		for _, dev := range selected {
			if err := c.store.UpdateDeviceStatus(dev.ID, domain.DeviceTraining); err != nil {
				c.failUnlessCanceled(ctx, &job, modelKey, log, err)
				return err
			}
			reserved = append(reserved, dev.ID)
		}

		record, err := c.runRound(ctx, &job, modelKey, a, r, selected, log)
		if err != nil {
			c.failUnlessCanceled(ctx, &job, modelKey, log, err)
			return err
		}

		rounds.Rounds = append(rounds.Rounds, *record)
		if err := c.store.SetJobMetrics(job.ID, rounds); err != nil {
			c.failUnlessCanceled(ctx, &job, modelKey, log, err)
			return err
		}

		c.releaseDevices(reserved)
		reserved = reserved[:0]
		if err := c.blobs.Delete(ctx, blob.GradientsKey(modelKey, r)); err != nil {
			log.Warn().Err(err).Int("round", r).Msg("gradient bucket cleanup failed")
		}

		outcome := "aggregated"
		if record.Skipped {
			outcome = "skipped"
		}
		metrics.TrainingRoundsTotal.WithLabelValues(outcome).Inc()
	}

	if err := c.store.CompleteJob(job.ID, domain.JobCompleted); err != nil {
		return err
	}
	if err := c.store.UpdateModelStatus(*job.ModelID, domain.ModelTrained); err != nil {
		return err
	}
	c.cleanupEphemerals(ctx, &job, modelKey, true)
	log.Info().Int("rounds", job.NumRounds).Msg("job completed")
	return nil
}

// prepareModel resolves the job's model, auto-creating a default one for
// jobs started without a model_id, and guarantees a global blob exists,
// recreating it from the architecture when missing.
func (c *Coordinator) prepareModel(ctx context.Context, job *domain.TrainingJob, log zerolog.Logger) (string, arch.Architecture, error) {
	if job.ModelID == nil {
		now := time.Now().UTC()
		model := &domain.Model{
			ID:           uuid.New(),
			Name:         "job-" + job.ID.String(),
			Architecture: arch.DefaultKey,
			Status:       domain.ModelInitial,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := c.store.CreateModel(model); err != nil {
			return "", arch.Architecture{}, err
		}
		if err := c.store.SetJobModel(job.ID, model.ID); err != nil {
			return "", arch.Architecture{}, err
		}
		job.ModelID = &model.ID
		log.Info().Str("model", model.ID.String()).Msg("auto-created default model for job")
	}

	model, err := c.store.GetModel(*job.ModelID)
	if err != nil {
		return "", arch.Architecture{}, err
	}
	if model == nil {
		return "", arch.Architecture{}, domain.E(domain.KindNotFound, "model %s not found", job.ModelID)
	}
	archKey := model.Architecture
	modelKey := model.ID.String()
	name := model.Name
	if err := c.store.UpdateModelStatus(model.ID, domain.ModelTraining); err != nil {
		return "", arch.Architecture{}, err
	}

	a, err := arch.Get(archKey)
	if err != nil {
		return modelKey, arch.Architecture{}, err
	}

	exists, err := c.blobs.Exists(ctx, blob.ModelGlobalKey(modelKey))
	if err != nil {
		return modelKey, a, err
	}
	if !exists {
		log.Warn().Str("model", modelKey).Str("architecture", archKey).
			Msg("global model blob missing, recreating from architecture")
		blobBytes, err := c.adapter.Build(a, nil, job.LearningRate)
		if err != nil {
			return modelKey, a, err
		}
		if err := c.writeModelBlob(ctx, modelKey, name, 0, blobBytes); err != nil {
			return modelKey, a, err
		}
	}
	return modelKey, a, nil
}

// consumeStopFlag checks the stop flag; when set it persists `stopped`
// and cleans up, preserving the model blob.
func (c *Coordinator) consumeStopFlag(ctx context.Context, job *domain.TrainingJob, modelKey string, log zerolog.Logger) (bool, error) {
	set, err := c.blobs.Exists(ctx, blob.StopFlagKey(job.ID.String()))
	if err != nil {
		return false, err
	}
	if !set {
		return false, nil
	}
	log.Info().Msg("stop flag consumed, stopping job")
	if err := c.store.CompleteJob(job.ID, domain.JobStopped); err != nil {
		return true, err
	}
	c.cleanupEphemerals(ctx, job, modelKey, true)
	return true, nil
}

// waitForDevices retries device selection with capped exponential
// backoff. Returns (nil, false, nil) when all attempts are exhausted and
// (nil, true, nil) when a stop flag interrupted the wait.
func (c *Coordinator) waitForDevices(ctx context.Context, job *domain.TrainingJob, modelKey string, log zerolog.Logger) ([]domain.Device, bool, error) {
	var policy *domain.SchedulerPolicy
	if job.Config != nil {
		policy = job.Config.Scheduler
	}
	cfg := scheduler.FromPolicy(policy)

	for attempt := 0; attempt < c.cfg.WaitAttempts; attempt++ {
		online, err := c.store.ListDevices(domain.DeviceOnline)
		if err != nil {
			return nil, false, err
		}
		if len(online) >= job.MinDevices {
			if selected, ok := scheduler.Select(online, cfg, job.MinDevices); ok && len(selected) >= job.MinDevices {
				return selected, false, nil
			}
		}

		backoff := c.backoff(attempt)
		log.Debug().Int("attempt", attempt+1).Dur("backoff", backoff).
			Int("online", len(online)).Int("min_devices", job.MinDevices).
			Msg("waiting for devices")
		if !sleepCtx(ctx, backoff) {
			return nil, false, ctx.Err()
		}
		if set, err := c.blobs.Exists(ctx, blob.StopFlagKey(job.ID.String())); err == nil && set {
			stopped, err := c.consumeStopFlag(ctx, job, modelKey, log)
			return nil, stopped, err
		}
	}
	return nil, false, nil
}

// waitBackoff is min(10·2^min(attempt,4), 120) seconds.
func waitBackoff(attempt int) time.Duration {
	if attempt > 4 {
		attempt = 4
	}
	s := 10 * (1 << attempt)
	if s > 120 {
		s = 120
	}
	return time.Duration(s) * time.Second
}

// runRound dispatches one round to the selected devices and aggregates
// whatever comes back. It returns the round's metrics record; empty or
// all-invalid rounds come back as skipped records, not errors.
func (c *Coordinator) runRound(ctx context.Context, job *domain.TrainingJob, modelKey string, a arch.Architecture, r int, selected []domain.Device, log zerolog.Logger) (*domain.RoundRecord, error) {
	started := time.Now()
	defer func() { metrics.TrainingRoundDuration.Observe(time.Since(started).Seconds()) }()

	lr := fedavg.CosineLR(job.LearningRate, r, job.NumRounds)
	if err := c.setModelLearningRate(ctx, modelKey, lr); err != nil {
		return nil, err
	}

	bucket := blob.GradientsKey(modelKey, r)
	var retries int
	for {
		if err := c.dispatch(ctx, job, modelKey, a.Key, r, selected); err != nil {
			return nil, err
		}
		log.Info().Int("round", r).Int("devices", len(selected)).Float64("lr", lr).Msg("round dispatched")

		if err := c.collect(ctx, bucket, len(selected)); err != nil {
			return nil, err
		}
		n, err := c.blobs.LLen(ctx, bucket)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			break
		}
		if retries >= c.cfg.RoundRetries {
			log.Warn().Int("round", r).Msg("round skipped: no submissions after retries")
			return &domain.RoundRecord{
				Round: r, Dispatched: len(selected),
				Skipped: true, Reason: domain.SkipNoSubmissions, Retries: retries,
			}, nil
		}
		retries++
		c.blobs.Delete(ctx, bucket)
		log.Warn().Int("round", r).Int("retry", retries).Msg("empty gradient bucket, re-dispatching")
	}

	envelopes, err := c.blobs.LRange(ctx, bucket, 0, -1)
	if err != nil {
		return nil, err
	}
	updates, deviceMetrics := parseSubmissions(envelopes, log)
	if len(updates) == 0 {
		log.Warn().Int("round", r).Msg("round skipped: every submission invalid")
		return &domain.RoundRecord{
			Round: r, Dispatched: len(selected),
			Skipped: true, Reason: domain.SkipAllInvalid, Retries: retries,
		}, nil
	}

	loss, acc, err := c.aggregateAndEvaluate(ctx, job, modelKey, a, r, updates)
	if err != nil {
		return nil, err
	}

	return &domain.RoundRecord{
		Round:         r,
		Participants:  len(updates),
		Dispatched:    len(selected),
		AvgLoss:       &loss,
		AvgAccuracy:   &acc,
		Retries:       retries,
		DeviceMetrics: deviceMetrics,
	}, nil
}

// dispatch queues one start_training command per selected device with
// its (index, total) dataset partition.
func (c *Coordinator) dispatch(ctx context.Context, job *domain.TrainingJob, modelKey, archKey string, r int, selected []domain.Device) error {
	for i, dev := range selected {
		cmd := domain.Command{
			Type: domain.CommandStartTraining,
			Parameters: map[string]string{
				domain.ParamJobID:          job.ID.String(),
				domain.ParamModelID:        modelKey,
				domain.ParamRound:          strconv.Itoa(r),
				domain.ParamPartitionIndex: strconv.Itoa(i),
				domain.ParamPartitionTotal: strconv.Itoa(len(selected)),
				domain.ParamArchitecture:   archKey,
			},
		}
		if err := c.monitor.QueueCommand(ctx, dev.ID, cmd); err != nil {
			return fmt.Errorf("dispatch to %s: %w", dev.ID, err)
		}
	}
	return nil
}

// collect polls the gradient bucket until it holds one submission per
// dispatched device or the round timeout elapses.
func (c *Coordinator) collect(ctx context.Context, bucket string, want int) error {
	deadline := time.Now().Add(c.cfg.RoundTimeout)
	for {
		n, err := c.blobs.LLen(ctx, bucket)
		if err != nil {
			return err
		}
		if int(n) >= want || time.Now().After(deadline) {
			return nil
		}
		if !sleepCtx(ctx, c.cfg.GradientPoll) {
			return ctx.Err()
		}
	}
}

// parseSubmissions decodes envelopes and drops invalid ones: zero or
// negative sample counts, empty gradients, or payloads shorter than the
// layered-format header.
func parseSubmissions(envelopes []string, log zerolog.Logger) ([]fedavg.Update, []domain.DeviceRoundMetric) {
	var updates []fedavg.Update
	var deviceMetrics []domain.DeviceRoundMetric
	for _, raw := range envelopes {
		var sub domain.GradientSubmission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			log.Warn().Err(err).Msg("dropping undecodable submission")
			continue
		}
		if sub.NumSamples <= 0 || len(sub.Gradients) < codec.HeaderSize {
			log.Warn().Str("device", sub.DeviceID).Int("num_samples", sub.NumSamples).
				Int("bytes", len(sub.Gradients)).Msg("dropping invalid submission")
			continue
		}
		deltas, err := codec.Decode(sub.Gradients)
		if err != nil {
			log.Warn().Err(err).Str("device", sub.DeviceID).Msg("dropping malformed gradient payload")
			continue
		}
		updates = append(updates, fedavg.Update{Deltas: deltas, NumSamples: sub.NumSamples})
		deviceMetrics = append(deviceMetrics, domain.DeviceRoundMetric{
			DeviceID:   sub.DeviceID,
			NumSamples: sub.NumSamples,
			Metrics:    sub.Metrics,
		})
	}
	return updates, deviceMetrics
}

// aggregateAndEvaluate folds the round's updates into the global model,
// persists the new blob and version, and scores the result.
func (c *Coordinator) aggregateAndEvaluate(ctx context.Context, job *domain.TrainingJob, modelKey string, a arch.Architecture, r int, updates []fedavg.Update) (loss, acc float64, err error) {
	blobBytes, err := c.readModelBlob(ctx, modelKey)
	if err != nil {
		return 0, 0, err
	}
	weights, err := c.adapter.ExtractWeights(blobBytes)
	if err != nil {
		return 0, 0, err
	}

	averaged := fedavg.Aggregate(updates)
	next, err := fedavg.Apply(weights, averaged)
	if err != nil {
		return 0, 0, err
	}
	nextBlob, err := c.adapter.InjectWeights(blobBytes, next)
	if err != nil {
		return 0, 0, err
	}

	name := "job-" + job.ID.String()
	if model, err := c.store.GetModel(*job.ModelID); err == nil && model != nil {
		name = model.Name
	}
	if err := c.writeModelBlob(ctx, modelKey, name, r, nextBlob); err != nil {
		return 0, 0, err
	}
	if err := c.store.UpdateModelVersion(*job.ModelID, r); err != nil {
		return 0, 0, err
	}

	loss, acc, err = c.evaluator.Evaluate(next, a)
	if err != nil {
		return 0, 0, err
	}

	latest, _ := json.Marshal(domain.LatestMetrics{
		ServerAccuracy: acc,
		ServerLoss:     loss,
		Round:          r,
		JobID:          job.ID.String(),
	})
	if err := c.blobs.Set(ctx, blob.LatestMetricsKey, string(latest)); err != nil {
		return 0, 0, err
	}
	return loss, acc, nil
}

// failUnlessCanceled routes a round-loop error: shutdown cancellation
// leaves the job running so the adopt loop resumes it from its
// checkpoint on the next start; everything else persists failed.
func (c *Coordinator) failUnlessCanceled(ctx context.Context, job *domain.TrainingJob, modelKey string, log zerolog.Logger, cause error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) || ctx.Err() != nil {
		log.Info().Int("current_round", job.CurrentRound).
			Msg("shutdown interrupted job, leaving it running for resume")
		return
	}
	c.failJob(ctx, job, modelKey, log, cause)
}

// failJob persists failed and cleans up ephemerals, preserving the model
// blob for a later retry.
func (c *Coordinator) failJob(ctx context.Context, job *domain.TrainingJob, modelKey string, log zerolog.Logger, cause error) {
	if cause != nil {
		log.Error().Err(cause).Msg("persisting job failure")
	}
	if err := c.store.CompleteJob(job.ID, domain.JobFailed); err != nil {
		log.Error().Err(err).Msg("persisting failed status failed")
	}
	if job.ModelID != nil {
		if err := c.store.UpdateModelStatus(*job.ModelID, domain.ModelError); err != nil {
			log.Error().Err(err).Msg("persisting model error status failed")
		}
	}
	c.cleanupEphemerals(ctx, job, modelKey, true)
}

// cleanupEphemerals removes the stop flag and gradient buckets. The
// model blob and meta are removed only when keepModel is false.
func (c *Coordinator) cleanupEphemerals(ctx context.Context, job *domain.TrainingJob, modelKey string, keepModel bool) {
	c.blobs.Delete(ctx, blob.StopFlagKey(job.ID.String()))
	if modelKey == "" {
		return
	}
	c.blobs.DeletePattern(ctx, blob.GradientsPattern(modelKey))
	if !keepModel {
		c.blobs.DeletePattern(ctx, blob.ModelPattern(modelKey))
	}
}

// releaseDevices returns reserved devices still marked training to
// online. Runs on every exit path.
func (c *Coordinator) releaseDevices(reserved []uuid.UUID) {
	for _, id := range reserved {
		dev, err := c.store.GetDevice(id)
		if err != nil || dev == nil {
			continue
		}
		if dev.Status == domain.DeviceTraining {
			if err := c.store.UpdateDeviceStatus(id, domain.DeviceOnline); err != nil {
				c.log.Warn().Err(err).Str("device", id.String()).Msg("device release failed")
			}
		}
	}
}

func (c *Coordinator) readModelBlob(ctx context.Context, modelKey string) ([]byte, error) {
	encoded, ok, err := c.blobs.Get(ctx, blob.ModelGlobalKey(modelKey))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.E(domain.KindNotFound, "model blob %s missing", modelKey)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func (c *Coordinator) writeModelBlob(ctx context.Context, modelKey, name string, version int, blobBytes []byte) error {
	if err := c.blobs.Set(ctx, blob.ModelGlobalKey(modelKey), base64.StdEncoding.EncodeToString(blobBytes)); err != nil {
		return err
	}
	meta, _ := json.Marshal(domain.ModelMeta{
		ModelID:   modelKey,
		Name:      name,
		Version:   strconv.Itoa(version),
		Framework: "edgeorchestra",
		SizeBytes: len(blobBytes),
	})
	return c.blobs.Set(ctx, blob.ModelMetaKey(modelKey), string(meta))
}

func (c *Coordinator) setModelLearningRate(ctx context.Context, modelKey string, lr float64) error {
	blobBytes, err := c.readModelBlob(ctx, modelKey)
	if err != nil {
		return err
	}
	updated, err := c.adapter.SetLearningRate(blobBytes, lr)
	if err != nil {
		return err
	}
	return c.blobs.Set(ctx, blob.ModelGlobalKey(modelKey), base64.StdEncoding.EncodeToString(updated))
}

// sleepCtx sleeps for d unless ctx is canceled first. Reports whether
// the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
