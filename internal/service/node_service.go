package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// NodeService owns this process's node row: self-registration, the
// periodic heartbeat with utilisation metrics, and the sweep that
// deactivates nodes whose heartbeat went stale.
type NodeService struct {
	nodes  repository.NodeRepository
	cfg    config.NodeConfig
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	selfID  models.ULID
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewNodeService creates a NodeService.
func NewNodeService(nodes repository.NodeRepository, cfg config.NodeConfig) *NodeService {
	return &NodeService{
		nodes:  nodes,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *NodeService) WithLogger(logger *slog.Logger) *NodeService {
	s.logger = logger
	return s
}

// Register resolves or creates this process's node row by configured name.
func (s *NodeService) Register(ctx context.Context) (*models.Node, error) {
	if s.cfg.Name == "" {
		return nil, errors.New("node name not configured")
	}

	node, err := s.nodes.GetByName(ctx, s.cfg.Name)
	if err != nil {
		return nil, err
	}
	if node == nil {
		host, _ := os.Hostname()
		node = &models.Node{
			Name:     s.cfg.Name,
			Host:     host,
			Capacity: s.cfg.Capacity,
		}
		if err := s.nodes.Create(ctx, node); err != nil {
			return nil, fmt.Errorf("registering node: %w", err)
		}
		s.logger.Info("node registered",
			slog.String("node", node.Name),
			slog.Int("capacity", node.Capacity),
		)
	}

	s.mu.Lock()
	s.selfID = node.ID
	s.mu.Unlock()
	return node, nil
}

// Start registers the node and launches the heartbeat loop.
func (s *NodeService) Start(ctx context.Context) error {
	if _, err := s.Register(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("node service already started")
	}

	var loopCtx context.Context
	loopCtx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.heartbeatLoop(loopCtx)
	return nil
}

// Stop halts the heartbeat loop.
func (s *NodeService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *NodeService) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	// First beat right away so the node shows up without waiting a tick.
	if err := s.Heartbeat(ctx); err != nil {
		s.logger.Warn("heartbeat failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Heartbeat(ctx); err != nil {
				s.logger.Warn("heartbeat failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Heartbeat refreshes this node's last-seen timestamp and utilisation
// metrics. Metric collection errors degrade to a partial payload.
func (s *NodeService) Heartbeat(ctx context.Context) error {
	s.mu.Lock()
	id := s.selfID
	s.mu.Unlock()
	if id.IsZero() {
		return errors.New("node not registered")
	}
	return s.nodes.Heartbeat(ctx, id, s.collectMetrics(ctx))
}

// collectMetrics gathers the CPU, memory, and load figures for the
// heartbeat payload.
func (s *NodeService) collectMetrics(ctx context.Context) models.JSONMap {
	metrics := models.JSONMap{}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		metrics["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		metrics["memory_percent"] = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		metrics["load1"] = avg.Load1
	}

	return metrics
}

// SweepStale deactivates nodes whose heartbeat is older than the
// configured maximum age. Invoked on the sweep schedule.
func (s *NodeService) SweepStale(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.HeartbeatMaxAge)
	swept, err := s.nodes.DeactivateStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweeping stale nodes: %w", err)
	}
	if swept > 0 {
		s.logger.Warn("deactivated stale nodes", slog.Int64("count", swept))
	}
	return nil
}
