// Package balancer assigns media items to transcoding nodes by load.
package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
)

// ErrNoNodeAvailable indicates no active node exists to take new work.
var ErrNoNodeAvailable = errors.New("no node available")

// Balancer picks the least loaded active node for new media items.
type Balancer struct {
	nodes  repository.NodeRepository
	logger *slog.Logger
}

// New creates a Balancer.
func New(nodes repository.NodeRepository) *Balancer {
	return &Balancer{
		nodes:  nodes,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (b *Balancer) WithLogger(logger *slog.Logger) *Balancer {
	b.logger = logger
	return b
}

// Select returns the active node with the fewest in-flight media items.
// Nodes under their capacity are preferred; when every node is saturated
// the least loaded one still wins, so uploads keep flowing during bursts.
// Ties resolve to the oldest node.
func (b *Balancer) Select(ctx context.Context) (*models.Node, error) {
	nodes, err := b.nodes.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, ErrNoNodeAvailable
	}

	var best *models.Node
	var bestLoad int64
	var bestUnder *models.Node
	var bestUnderLoad int64

	for _, node := range nodes {
		load, err := b.nodes.CurrentLoad(ctx, node.ID)
		if err != nil {
			return nil, fmt.Errorf("loading node %s: %w", node.Name, err)
		}

		if best == nil || load < bestLoad {
			best = node
			bestLoad = load
		}
		if load < int64(node.Capacity) && (bestUnder == nil || load < bestUnderLoad) {
			bestUnder = node
			bestUnderLoad = load
		}
	}

	picked := best
	load := bestLoad
	if bestUnder != nil {
		picked = bestUnder
		load = bestUnderLoad
	}

	b.logger.Debug("node picked",
		slog.String("node", picked.Name),
		slog.Int64("load", load),
		slog.Int("capacity", picked.Capacity),
	)
	return picked, nil
}
