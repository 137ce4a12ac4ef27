// Package wire implements the loopback TCP transport connecting the
// orchestrator, its workers, and the dashboard: a length-prefixed framing
// layer (frame.go), a msgpack codec on top of it (codec.go), and the closed
// catalog of messages the three processes exchange (this file).
package wire

import "github.com/igentai/genorch/internal/sharedtypes"

// Command is sent orchestrator -> worker.
type Command struct {
	Start        *Start        `msgpack:"start,omitempty"`
	Stop         *Stop         `msgpack:"stop,omitempty"`
	UpdateConfig *UpdateConfig `msgpack:"update_config,omitempty"`
	SyncCheck    *SyncCheck    `msgpack:"sync_check,omitempty"`
	Ping         *Ping         `msgpack:"ping,omitempty"`
}

type Start struct {
	CommandID        string                         `msgpack:"command_id"`
	Topic            string                         `msgpack:"topic"`
	Prompt           string                         `msgpack:"prompt"`
	RoutingStrategy  sharedtypes.RoutingStrategy     `msgpack:"routing_strategy"`
	GenerationConfig sharedtypes.GenerationConfig    `msgpack:"generation_config"`
}

type Stop struct {
	CommandID string `msgpack:"command_id"`
}

// UpdateConfig carries an in-place change to a running worker. Every field
// but CommandID is optional; a nil field leaves that aspect unchanged.
type UpdateConfig struct {
	CommandID        string                        `msgpack:"command_id"`
	RoutingStrategy  *sharedtypes.RoutingStrategy  `msgpack:"routing_strategy,omitempty"`
	GenerationConfig *sharedtypes.GenerationConfig `msgpack:"generation_config,omitempty"`
	Prompt           *string                       `msgpack:"prompt,omitempty"`
}

// SyncCheck asks a worker to reconcile against the authoritative bloom
// filter. The worker applies BloomFilter/BloomVersion when both are present
// and deserialize; otherwise it rebuilds its own filter from SeenValues. The
// orchestrator in this module never constructs or sends a SyncCheck: only
// the worker-side handling exists.
type SyncCheck struct {
	SyncID        string   `msgpack:"sync_id"`
	Timestamp     int64    `msgpack:"timestamp"`
	BloomFilter   []byte   `msgpack:"bloom_filter,omitempty"`
	BloomVersion  *uint64  `msgpack:"bloom_version,omitempty"`
	RequiresDedup bool     `msgpack:"requires_dedup"`
	SeenValues    []string `msgpack:"seen_values,omitempty"`
}

type Ping struct {
	PingID string `msgpack:"ping_id"`
}

// Update is sent worker -> orchestrator.
type Update struct {
	AttributeBatch *AttributeBatch `msgpack:"attribute_batch,omitempty"`
	StatusUpdate   *StatusUpdate   `msgpack:"status_update,omitempty"`
	SyncAck        *SyncAck        `msgpack:"sync_ack,omitempty"`
	Pong           *Pong           `msgpack:"pong,omitempty"`
	Error          *WorkerError    `msgpack:"error,omitempty"`
	Ready          *WorkerReady    `msgpack:"ready,omitempty"`
}

type AttributeBatch struct {
	WorkerID         uint32                           `msgpack:"worker_id"`
	BatchID          string                           `msgpack:"batch_id"`
	Attributes       []string                         `msgpack:"attributes"`
	ProviderMetadata sharedtypes.ProviderMetadata      `msgpack:"provider_metadata"`
}

type StatusUpdate struct {
	WorkerID        uint32                    `msgpack:"worker_id"`
	Status          sharedtypes.WorkerStatus  `msgpack:"status"`
	Message         *string                   `msgpack:"message,omitempty"`
	PerformanceStats map[string]interface{}   `msgpack:"performance_stats,omitempty"`
}

type SyncAck struct {
	WorkerID     uint32  `msgpack:"worker_id"`
	SyncID       string  `msgpack:"sync_id"`
	BloomVersion *uint64 `msgpack:"bloom_version,omitempty"`
	Status       string  `msgpack:"status"`
}

type Pong struct {
	WorkerID uint32 `msgpack:"worker_id"`
	PingID   string `msgpack:"ping_id"`
}

type WorkerError struct {
	WorkerID  uint32  `msgpack:"worker_id"`
	ErrorCode string  `msgpack:"error_code"`
	Message   string  `msgpack:"message"`
	CommandID *string `msgpack:"command_id,omitempty"`
}

// WorkerReady is the readiness handshake: sent once a worker's listener is
// bound and accepting. Only after the orchestrator records this does it
// flush any commands it had buffered for that worker.
type WorkerReady struct {
	WorkerID   uint32 `msgpack:"worker_id"`
	ListenPort uint16 `msgpack:"listen_port"`
}

// DashboardRequest is sent dashboard -> orchestrator.
type DashboardRequest struct {
	StartGeneration *StartGenerationRequest `msgpack:"start_generation,omitempty"`
	StopGeneration  *StopGenerationRequest  `msgpack:"stop_generation,omitempty"`
	GetStatus       *GetStatusRequest       `msgpack:"get_status,omitempty"`
	UpdateConfig    *DashboardUpdateConfig  `msgpack:"update_config,omitempty"`
	Ready           *DashboardReady         `msgpack:"ready,omitempty"`
}

type StartGenerationRequest struct {
	Topic            string                       `msgpack:"topic"`
	Prompt           string                       `msgpack:"prompt"`
	RoutingStrategy  sharedtypes.RoutingStrategy  `msgpack:"routing_strategy"`
	GenerationConfig sharedtypes.GenerationConfig `msgpack:"generation_config"`
	Constraints      sharedtypes.GenerationConstraints `msgpack:"constraints"`
}

type StopGenerationRequest struct{}

type GetStatusRequest struct{}

type DashboardUpdateConfig struct {
	RoutingStrategy  *sharedtypes.RoutingStrategy  `msgpack:"routing_strategy,omitempty"`
	GenerationConfig *sharedtypes.GenerationConfig `msgpack:"generation_config,omitempty"`
}

// DashboardReady is the dashboard's own readiness handshake: it advertises
// both its ipc listen port and its public http port.
type DashboardReady struct {
	ListenPort uint16 `msgpack:"listen_port"`
	HTTPPort   uint16 `msgpack:"http_port"`
}

// DashboardUpdate is sent orchestrator -> dashboard.
type DashboardUpdate struct {
	RequestAck          *RequestAck           `msgpack:"request_ack,omitempty"`
	NewAttributes       *NewAttributes        `msgpack:"new_attributes,omitempty"`
	StatisticsUpdate    *StatisticsUpdate     `msgpack:"statistics_update,omitempty"`
	GenerationComplete  *GenerationComplete   `msgpack:"generation_complete,omitempty"`
	ErrorNotification   *ErrorNotification    `msgpack:"error_notification,omitempty"`
}

type RequestAck struct {
	Accepted bool   `msgpack:"accepted"`
	Reason   string `msgpack:"reason,omitempty"`
}

type NewAttributes struct {
	Topic      string   `msgpack:"topic"`
	Attributes []string `msgpack:"attributes"`
}

type StatisticsUpdate struct {
	Topic string                 `msgpack:"topic"`
	Stats map[string]interface{} `msgpack:"stats"`
}

type GenerationComplete struct {
	Topic  string                          `msgpack:"topic"`
	Reason sharedtypes.CompletionReason    `msgpack:"reason"`
}

// ErrorNotification carries an out-of-band error to the dashboard. It is
// never used as a health-check probe; Ping/Pong fills that role.
type ErrorNotification struct {
	Topic   string `msgpack:"topic,omitempty"`
	Message string `msgpack:"message"`
}
