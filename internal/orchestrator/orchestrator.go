// Package orchestrator admits failed storage nodes for recovery, caps how
// many recover at once and drives each recovery through cordon, evacuation,
// per-object repair and uncordon.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zraid/internal/cluster"
	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
	"github.com/zzenonn/zraid/internal/metrics"
)

// Repairer rebuilds the blobs of a node. service.StorageService implements it.
type Repairer interface {
	ObjectsOn(ctx context.Context, node string) ([]domain.ObjectMetadata, error)
	EvacuateNode(ctx context.Context, node string, objects []domain.ObjectMetadata) error
	RepairObject(ctx context.Context, metadata domain.ObjectMetadata, node string) error
}

// Config holds the orchestrator settings.
type Config struct {
	MaxConcurrent       int
	GracePeriod         time.Duration
	ProtectedNamespaces []string
	// DrainPollInterval is how often evacuation checks for remaining pods.
	DrainPollInterval time.Duration
}

// Orchestrator tracks node recovery state. Node states, sessions and the
// queue are guarded by mu; recoveries run on a fixed pool of MaxConcurrent
// workers.
type Orchestrator struct {
	cfg      Config
	cluster  cluster.Client
	repairer Repairer
	recorder metrics.Recorder
	logger   log.FieldLogger

	mu       sync.Mutex
	states   map[string]domain.NodeState
	sessions map[string]*domain.RecoverySession
	queue    []string
	active   int
	changed  chan struct{}

	work        chan string
	objectLocks *xsync.MapOf[string, *objectLock]

	// done is the Start context's Done channel and workers counts live
	// workers. Both are guarded by mu.
	done    <-chan struct{}
	workers int

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// objectLock serialises repairs of one object. refs counts the holders and
// waiters; the entry is removed when it drops to zero.
type objectLock struct {
	sync.Mutex
	refs int
}

// New creates an orchestrator. Call Start to launch the worker pool.
func New(cfg Config, client cluster.Client, repairer Repairer, recorder metrics.Recorder, logger log.FieldLogger) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.DrainPollInterval <= 0 {
		cfg.DrainPollInterval = time.Second
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Orchestrator{
		cfg:         cfg,
		cluster:     client,
		repairer:    repairer,
		recorder:    recorder,
		logger:      logger,
		states:      make(map[string]domain.NodeState),
		sessions:    make(map[string]*domain.RecoverySession),
		changed:     make(chan struct{}),
		work:        make(chan string, cfg.MaxConcurrent),
		objectLocks: xsync.NewMapOf[string, *objectLock](),
		quit:        make(chan struct{}),
	}
}

// Start launches the worker pool. Recoveries admitted before Start wait in
// the hand-off channel. Cancelling ctx stops the pool like Stop does.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.mu.Lock()
		o.done = ctx.Done()
		o.workers = o.cfg.MaxConcurrent
		o.mu.Unlock()

		for i := 0; i < o.cfg.MaxConcurrent; i++ {
			o.wg.Add(1)
			go o.worker(ctx)
		}
		o.logger.Infof("Recovery orchestrator started with %d workers", o.cfg.MaxConcurrent)
	})
}

// Stop stops the workers once their current recovery is done. Later
// requests fail with ErrStopped and nodes that were admitted or queued but
// never picked up are marked failed.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.quit)
	})
	o.wg.Wait()
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	defer o.workerExited()
	for {
		select {
		case <-o.quit:
			return
		case <-ctx.Done():
			return
		case node := <-o.work:
			// Started recoveries finish even when the pool is shut down.
			o.run(context.WithoutCancel(ctx), node)
		}
	}
}

// workerExited abandons the undelivered work once the last worker is gone.
func (o *Orchestrator) workerExited() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.workers--
	if o.workers > 0 {
		return
	}

	var abandoned []string
drain:
	for {
		select {
		case node := <-o.work:
			o.active--
			abandoned = append(abandoned, node)
		default:
			break drain
		}
	}
	abandoned = append(abandoned, o.queue...)
	o.queue = nil

	for _, node := range abandoned {
		o.states[node] = domain.NodeFailed
		delete(o.sessions, node)
		o.recorder.RecordEvent(metrics.KindRecovery, metrics.OutcomeFailure, 0)
		o.logger.WithField("node", node).Warn("Recovery abandoned, orchestrator stopped")
	}
	o.publishLocked()
}

// stoppedLocked reports whether Stop was called or the Start context ended.
func (o *Orchestrator) stoppedLocked() bool {
	select {
	case <-o.quit:
		return true
	case <-o.done:
		return true
	default:
		return false
	}
}

// RequestRecovery admits node for recovery. It returns NodeActive when a
// worker slot was free, NodeQueued otherwise. Requests for a node that is
// already queued or active return its current state and change nothing.
// Once the orchestrator is stopped every request fails with ErrStopped.
func (o *Orchestrator) RequestRecovery(node string) (domain.NodeState, error) {
	if node == "" {
		return "", fmt.Errorf("%w: empty node name", zerrors.ErrInvalidKey)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stoppedLocked() {
		return "", fmt.Errorf("recover %s: %w", node, zerrors.ErrStopped)
	}

	if state := o.states[node]; state == domain.NodeQueued || state == domain.NodeActive {
		return state, nil
	}

	session := &domain.RecoverySession{
		ID:          uuid.NewString(),
		Node:        node,
		State:       domain.SessionQueued,
		RequestedAt: time.Now(),
	}
	o.sessions[node] = session
	logger := o.logger.WithFields(log.Fields{"node": node, "session": session.ID})

	if o.active >= o.cfg.MaxConcurrent {
		o.states[node] = domain.NodeQueued
		o.queue = append(o.queue, node)
		o.publishLocked()
		o.recorder.RecordEvent(metrics.KindRecovery, metrics.OutcomeQueued, 0)
		logger.Infof("Recovery queued at position %d", len(o.queue))
		return domain.NodeQueued, nil
	}

	o.activateLocked(node)
	logger.Info("Recovery admitted")
	return domain.NodeActive, nil
}

// activateLocked marks node active and hands it to the pool. The channel
// holds at most MaxConcurrent nodes and active never exceeds that, so the
// send does not block.
func (o *Orchestrator) activateLocked(node string) {
	o.states[node] = domain.NodeActive
	o.active++
	if s := o.sessions[node]; s != nil {
		s.State = domain.SessionActive
		s.StartedAt = time.Now()
	}
	o.publishLocked()
	o.work <- node
}

// publishLocked updates gauges and wakes WaitIdle callers.
func (o *Orchestrator) publishLocked() {
	o.recorder.SetActive(o.active)
	o.recorder.SetQueueDepth(len(o.queue))
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) run(ctx context.Context, node string) {
	o.mu.Lock()
	sessionID := ""
	if s := o.sessions[node]; s != nil {
		sessionID = s.ID
	}
	o.mu.Unlock()

	logger := o.logger.WithFields(log.Fields{"node": node, "session": sessionID})
	start := time.Now()
	err := o.recoverNode(ctx, node, logger)
	duration := time.Since(start)

	if err != nil {
		logger.Errorf("Recovery failed after %s: %v", duration.Round(time.Millisecond), err)
		o.recorder.RecordEvent(metrics.KindRecovery, metrics.OutcomeFailure, duration)
	} else {
		logger.Infof("Recovery completed in %s", duration.Round(time.Millisecond))
		o.recorder.RecordEvent(metrics.KindRecovery, metrics.OutcomeSuccess, duration)
	}
	o.complete(node, err)
}

// complete releases the admission slot of node and admits the queue head.
func (o *Orchestrator) complete(node string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.active--
	delete(o.sessions, node)
	if err != nil {
		o.states[node] = domain.NodeFailed
	} else {
		o.states[node] = domain.NodeHealthy
	}

	if len(o.queue) > 0 && !o.stoppedLocked() {
		next := o.queue[0]
		o.queue = o.queue[1:]
		o.logger.WithField("node", next).Info("Recovery admitted from queue")
		o.activateLocked(next)
		return
	}
	o.publishLocked()
}

func (o *Orchestrator) recoverNode(ctx context.Context, node string, logger log.FieldLogger) error {
	logger.Info("Cordoning node")
	if err := o.cluster.SetUnschedulable(ctx, node, true); err != nil {
		return fmt.Errorf("failed to cordon node: %w", err)
	}

	objects, err := o.evacuate(ctx, node, logger)
	if err != nil {
		return err
	}

	var errs []error
	for _, metadata := range objects {
		if err := o.repairObject(ctx, metadata, node); err != nil {
			logger.WithField("object", metadata.Name).Errorf("Failed to recover object: %v", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Info("Uncordoning node")
	if err := o.cluster.SetUnschedulable(ctx, node, false); err != nil {
		return fmt.Errorf("failed to uncordon node: %w", err)
	}
	return nil
}

func (o *Orchestrator) repairObject(ctx context.Context, metadata domain.ObjectMetadata, node string) error {
	lock := o.lockObject(metadata.Name)
	defer o.unlockObject(metadata.Name, lock)

	start := time.Now()
	err := o.repairer.RepairObject(ctx, metadata, node)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	o.recorder.RecordEvent(metrics.KindObject, outcome, time.Since(start))
	return err
}

func (o *Orchestrator) lockObject(name string) *objectLock {
	lock, _ := o.objectLocks.Compute(name, func(l *objectLock, loaded bool) (*objectLock, bool) {
		if !loaded {
			l = &objectLock{}
		}
		l.refs++
		return l, false
	})
	lock.Lock()
	return lock
}

func (o *Orchestrator) unlockObject(name string, lock *objectLock) {
	lock.Unlock()
	o.objectLocks.Compute(name, func(l *objectLock, loaded bool) (*objectLock, bool) {
		l.refs--
		return l, l.refs == 0
	})
}

// LockedObjects returns how many objects currently have a repair lock entry.
func (o *Orchestrator) LockedObjects() int {
	return o.objectLocks.Size()
}

// evacuate deletes the node's unprotected pods, waits up to the grace period
// for them to go away and deletes the node's stored blobs. It returns the
// objects that had a role on the node.
func (o *Orchestrator) evacuate(ctx context.Context, node string, logger log.FieldLogger) ([]domain.ObjectMetadata, error) {
	start := time.Now()

	pods, err := o.evictablePods(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	for _, pod := range pods {
		logger.Debugf("Deleting pod %s/%s", pod.Namespace, pod.Name)
		if err := o.cluster.DeletePod(ctx, pod.Namespace, pod.Name); err != nil {
			return nil, fmt.Errorf("failed to delete pod %s/%s: %w", pod.Namespace, pod.Name, err)
		}
	}
	if len(pods) > 0 {
		o.waitForDrain(ctx, node, logger)
	}

	objects, err := o.repairer.ObjectsOn(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects on node: %w", err)
	}
	if err := o.repairer.EvacuateNode(ctx, node, objects); err != nil {
		o.recorder.RecordEvent(metrics.KindEvacuate, metrics.OutcomeFailure, time.Since(start))
		return nil, err
	}

	o.recorder.RecordEvent(metrics.KindEvacuate, metrics.OutcomeSuccess, time.Since(start))
	logger.Infof("Evacuated %d pods and %d objects", len(pods), len(objects))
	return objects, nil
}

func (o *Orchestrator) evictablePods(ctx context.Context, node string) ([]cluster.PodRef, error) {
	pods, err := o.cluster.ListPodsOnNode(ctx, node)
	if err != nil {
		return nil, err
	}
	var evictable []cluster.PodRef
	for _, pod := range pods {
		if !o.protected(pod.Namespace) {
			evictable = append(evictable, pod)
		}
	}
	return evictable, nil
}

func (o *Orchestrator) protected(namespace string) bool {
	for _, ns := range o.cfg.ProtectedNamespaces {
		if ns == namespace {
			return true
		}
	}
	return false
}

// waitForDrain polls until no evictable pods remain. Running past the grace
// period is logged and otherwise ignored.
func (o *Orchestrator) waitForDrain(ctx context.Context, node string, logger log.FieldLogger) {
	deadline := time.NewTimer(o.cfg.GracePeriod)
	defer deadline.Stop()
	ticker := time.NewTicker(o.cfg.DrainPollInterval)
	defer ticker.Stop()

	for {
		pods, err := o.evictablePods(ctx, node)
		if err == nil && len(pods) == 0 {
			return
		}
		select {
		case <-deadline.C:
			logger.Warnf("Pods still present after grace period of %s", o.cfg.GracePeriod)
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// State returns the recovery state of node. Unknown nodes are healthy.
func (o *Orchestrator) State(node string) domain.NodeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.states[node]; ok {
		return state
	}
	return domain.NodeHealthy
}

// Nodes returns every node the orchestrator has seen, sorted by name.
func (o *Orchestrator) Nodes() []domain.NodeRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	records := make([]domain.NodeRecord, 0, len(o.states))
	for name, state := range o.states {
		records = append(records, domain.NodeRecord{Name: name, State: state})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records
}

// Sessions returns copies of the open recovery sessions in request order.
func (o *Orchestrator) Sessions() []domain.RecoverySession {
	o.mu.Lock()
	defer o.mu.Unlock()
	sessions := make([]domain.RecoverySession, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].RequestedAt.Before(sessions[j].RequestedAt) })
	return sessions
}

// Queue returns the queued node names in admission order.
func (o *Orchestrator) Queue() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.queue...)
}

// WaitIdle blocks until no recovery is active or queued.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	for {
		o.mu.Lock()
		if o.active == 0 && len(o.queue) == 0 {
			o.mu.Unlock()
			return nil
		}
		changed := o.changed
		o.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
