// AngelaMos | 2026
// dto.go

package admin

import (
	"github.com/carterperez-dev/templates/access-control/internal/access"
)

type SystemStatsResponse struct {
	Database   DatabaseStatus `json:"database"`
	Redis      *RedisStatus   `json:"redis,omitempty"`
	UsageStore StoreStatus    `json:"usage_store"`
	Runtime    RuntimeStats   `json:"runtime"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type StoreStatus struct {
	Healthy bool `json:"healthy"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

type UserUsageResponse struct {
	UserID string              `json:"user_id"`
	Tier   access.Tier         `json:"tier"`
	Meters []access.UsageMeter `json:"meters"`
}

type PurgeResponse struct {
	Removed int64 `json:"removed"`
}
