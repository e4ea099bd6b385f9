package worker

import (
	"encoding/json"
	"fmt"

	"github.com/evalgo/mcai-worker-sdk/version"
)

// Configuration is the worker's static identity: built once at startup,
// immutable thereafter, and what DESCRIBE=1 serializes for discovery.
type Configuration struct {
	Queue             string           `json:"queue"`
	WorkerName        string           `json:"worker_name"`
	ShortDescription  string           `json:"short_description"`
	Description       string           `json:"description"`
	Version           string           `json:"worker_version"`
	SDKVersion        string           `json:"sdk_version"`
	InstanceID        string           `json:"instance_id"`
	ParameterSchema   *ParameterSchema `json:"parameters"`
}

// NewConfiguration builds a Configuration from a queue name, a handler, and
// a resolved instance id. If handler also implements ParameterDeclarer, its
// parameter schema is derived by reflection; otherwise Parameters is an
// empty object schema.
func NewConfiguration(queueName string, handler Handler, instanceID string) (*Configuration, error) {
	schema := &ParameterSchema{Type: "object", Properties: map[string]PropertySchema{}}
	if declarer, ok := handler.(ParameterDeclarer); ok {
		built, err := BuildParameterSchema(declarer.ParametersType())
		if err != nil {
			return nil, fmt.Errorf("worker: building parameter schema: %w", err)
		}
		schema = built
	}

	return &Configuration{
		Queue:            queueName,
		WorkerName:       handler.Name(),
		ShortDescription: handler.ShortDescription(),
		Description:      handler.Description(),
		Version:          handler.Version(),
		SDKVersion:       version.SDKVersion,
		InstanceID:       instanceID,
		ParameterSchema:  schema,
	}, nil
}

// DirectMessagingQueueName is the per-instance control queue name used for
// Status/StopProcess/StopWorker orders, bypassing the shared job queue.
func (c *Configuration) DirectMessagingQueueName() string {
	return "direct_messaging." + c.InstanceID
}

// JSON serializes the configuration, the document DESCRIBE=1 prints.
func (c *Configuration) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
