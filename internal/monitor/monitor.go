// Package monitor polls the cluster for worker nodes that stopped being Ready
// and submits them for recovery.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zraid/internal/cluster"
	"github.com/zzenonn/zraid/internal/domain"
	"github.com/zzenonn/zraid/internal/metrics"
)

const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Requester accepts recovery requests. orchestrator.Orchestrator implements it.
type Requester interface {
	RequestRecovery(node string) (domain.NodeState, error)
}

// NodeHealth tracks the observed health of a single node.
type NodeHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	Node             string
	Status           string
	ConsecutiveFails int
}

// HealthMonitor checks the Ready condition of every node matching selector.
// A node that is not Ready for maxFailures consecutive checks is submitted
// once; it is submitted again only after it has been seen Ready.
type HealthMonitor struct {
	client      cluster.Client
	requester   Requester
	recorder    metrics.Recorder
	logger      log.FieldLogger
	selector    string
	interval    time.Duration
	maxFailures int
	namespace   string

	mu    sync.RWMutex
	nodes map[string]*NodeHealth
}

// DefaultInterval is used when no positive check interval is configured.
const DefaultInterval = 30 * time.Second

// NewHealthMonitor creates a monitor. maxFailures below 1 is treated as 1.
func NewHealthMonitor(client cluster.Client, requester Requester, selector string, interval time.Duration, maxFailures int, recorder metrics.Recorder, logger log.FieldLogger) *HealthMonitor {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &HealthMonitor{
		client:      client,
		requester:   requester,
		recorder:    recorder,
		logger:      logger,
		selector:    selector,
		interval:    interval,
		maxFailures: maxFailures,
		nodes:       make(map[string]*NodeHealth),
	}
}

// Run checks immediately and then every interval until ctx is cancelled.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Infof("Health monitor started with interval %v", h.interval)
	h.CheckOnce(ctx)

	for {
		select {
		case <-ticker.C:
			h.CheckOnce(ctx)
		case <-ctx.Done():
			h.logger.Info("Health monitor stopping")
			return
		}
	}
}

// WatchNamespace makes every round also report the pods of namespace. Call
// it before Run.
func (h *HealthMonitor) WatchNamespace(namespace string) {
	h.namespace = namespace
}

// CheckOnce performs a single polling round.
func (h *HealthMonitor) CheckOnce(ctx context.Context) {
	start := time.Now()
	nodes, err := h.client.ListNodes(ctx, h.selector)
	if err != nil {
		h.logger.Errorf("Failed to list nodes: %v", err)
		h.recorder.RecordEvent(metrics.KindNodeCheck, metrics.OutcomeFailure, time.Since(start))
		return
	}
	h.recorder.RecordEvent(metrics.KindNodeCheck, metrics.OutcomeSuccess, time.Since(start))

	current := make(map[string]bool, len(nodes))
	var failed []string
	for _, node := range nodes {
		current[node.Name] = true
		if h.observe(node) {
			failed = append(failed, node.Name)
		}
	}

	h.mu.Lock()
	for name := range h.nodes {
		if !current[name] {
			delete(h.nodes, name)
			h.logger.WithField("node", name).Info("Removed node from health monitoring")
		}
	}
	h.mu.Unlock()

	// Submitted without holding the lock.
	for _, name := range failed {
		state, err := h.requester.RequestRecovery(name)
		if err != nil {
			h.logger.WithField("node", name).Errorf("Failed to request recovery: %v", err)
			continue
		}
		h.logger.WithField("node", name).Infof("Recovery requested, node is %s", state)
	}

	if h.namespace != "" {
		h.checkPods(ctx)
	}
}

// checkPods records the phase and restart count of every pod in the watched
// namespace.
func (h *HealthMonitor) checkPods(ctx context.Context) {
	start := time.Now()
	pods, err := h.client.ListPods(ctx, h.namespace)
	if err != nil {
		h.logger.WithField("namespace", h.namespace).Errorf("Failed to list pods: %v", err)
		h.recorder.RecordEvent(metrics.KindPodCheck, metrics.OutcomeFailure, time.Since(start))
		return
	}
	h.recorder.RecordEvent(metrics.KindPodCheck, metrics.OutcomeSuccess, time.Since(start))

	for _, pod := range pods {
		h.recorder.SetPodStatus(pod.Name, pod.Running(), pod.Restarts)
		if !pod.Running() {
			h.logger.WithFields(log.Fields{"pod": pod.Name, "node": pod.Node}).
				Warnf("Pod is %s with %d restarts", pod.Phase, pod.Restarts)
		}
	}
}

// observe records one observation and reports whether the node just crossed
// the failure threshold.
func (h *HealthMonitor) observe(node cluster.NodeInfo) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	health, exists := h.nodes[node.Name]
	if !exists {
		health = &NodeHealth{Node: node.Name, Status: StatusUnknown}
		h.nodes[node.Name] = health
	}
	health.LastCheck = time.Now()
	h.recorder.SetNodeStatus(node.Name, node.Ready)
	logger := h.logger.WithField("node", node.Name)

	if node.Ready {
		if health.Status == StatusUnhealthy {
			logger.Info("Node is Ready again")
		}
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
		return false
	}

	health.ConsecutiveFails++
	logger.Warnf("Node is not Ready (%d/%d)", health.ConsecutiveFails, h.maxFailures)
	if health.ConsecutiveFails < h.maxFailures || health.Status == StatusUnhealthy {
		return false
	}
	health.Status = StatusUnhealthy
	return true
}

// GetNodeHealth returns a copy of the health record of node, or nil.
func (h *HealthMonitor) GetNodeHealth(node string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, exists := h.nodes[node]
	if !exists {
		return nil
	}
	copied := *health
	return &copied
}

// AllNodeHealth returns copies of every health record, sorted by node.
func (h *HealthMonitor) AllNodeHealth() []NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	all := make([]NodeHealth, 0, len(h.nodes))
	for _, health := range h.nodes {
		all = append(all, *health)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Node < all[j].Node })
	return all
}
