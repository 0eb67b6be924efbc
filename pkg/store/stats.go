package store

import (
	"fmt"
	"time"

	"github.com/pitlane/paddock/pkg/types"
)

// recentDeploymentLimit is how many history rows a stats snapshot embeds.
const recentDeploymentLimit = 10

// DashboardStats computes the statistics snapshot served by the
// management API and broadcast to live-update clients. It is built once
// per request or broadcast; callers never mutate it.
func (s *Store) DashboardStats() (*types.DashboardStats, error) {
	stats := &types.DashboardStats{
		Timestamp: time.Now().UTC().Format(types.ISO8601),
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM venues`).Scan(&stats.TotalVenues); err != nil {
		return nil, fmt.Errorf("failed to count venues: %w", err)
	}

	// One pass over the pool covers the total and every product/status
	// bucket.
	err := s.db.QueryRow(
		`SELECT
		    COUNT(*),
		    COALESCE(SUM(CASE WHEN product_type = 'KXP2' AND status = 'available' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN product_type = 'RXP2' AND status = 'available' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN product_type = 'KXP2' AND status = 'assigned' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN product_type = 'RXP2' AND status = 'assigned' THEN 1 ELSE 0 END), 0)
		 FROM hostname_pool`,
	).Scan(
		&stats.TotalHostnames,
		&stats.AvailableKXP2, &stats.AvailableRXP2,
		&stats.AssignedKXP2, &stats.AssignedRXP2,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count pool: %w", err)
	}
	stats.AvailableHostnames = stats.AvailableKXP2 + stats.AvailableRXP2
	stats.AssignedHostnames = stats.AssignedKXP2 + stats.AssignedRXP2

	since := time.Now().UTC().Add(-24 * time.Hour)
	stats.RecentDeploymentsCount, stats.SuccessfulDeployments, err = s.CountDeploymentsSince(since)
	if err != nil {
		return nil, err
	}

	stats.RecentDeployments, err = s.RecentDeployments(recentDeploymentLimit)
	if err != nil {
		return nil, err
	}
	if stats.RecentDeployments == nil {
		stats.RecentDeployments = []*types.DeploymentSummary{}
	}

	return stats, nil
}
