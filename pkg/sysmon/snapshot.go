package sysmon

import "encoding/json"

// ServiceStatus is the probe result for one monitored systemd unit
type ServiceStatus struct {
	Running bool   `json:"running"`
	Status  string `json:"status"`
}

// DatabaseStatus reports store reachability and on-disk size
type DatabaseStatus struct {
	Accessible bool    `json:"accessible"`
	SizeMB     float64 `json:"size_mb"`
	Error      string  `json:"error,omitempty"`
}

// DiskStatus reports capacity for the filesystem holding the data
// directory. Sizes are in gigabytes rounded to two decimals; the used
// percentage is rounded to one.
type DiskStatus struct {
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	AvailableGB float64 `json:"available_gb"`
	PercentUsed float64 `json:"percent_used"`
	Error       string  `json:"error,omitempty"`
}

// Snapshot is one complete health sample
type Snapshot struct {
	Services  map[string]ServiceStatus
	Database  DatabaseStatus
	DiskSpace DiskStatus
	Timestamp string
}

// MarshalJSON flattens the snapshot to the management wire shape: one
// top-level key per monitored service plus database, disk_space, and
// timestamp.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Services)+3)
	for name, svc := range s.Services {
		out[name] = svc
	}
	out["database"] = s.Database
	out["disk_space"] = s.DiskSpace
	out["timestamp"] = s.Timestamp
	return json.Marshal(out)
}
