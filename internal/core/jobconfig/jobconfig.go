// Package jobconfig imports job definitions from JSON or YAML documents, the
// way the job creation form is pre-filled from an uploaded file.
package jobconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"fedwatch.dashboard/internal/core/domain"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnsupportedFormat = errors.New("unsupported configuration format")

// FormatFromFilename picks the format from a file extension.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// FormatFromContentType maps a request content type to a format.
func FormatFromContentType(contentType string) (Format, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "", "application/json", "text/json":
		return FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
}

type ClientDraft struct {
	ServiceAddress string `json:"service_address" yaml:"service_address" validate:"required"`
	DataPath       string `json:"data_path" yaml:"data_path" validate:"required"`
	RedisAddress   string `json:"redis_address" yaml:"redis_address" validate:"required,hostname_port"`
	HashedPassword string `json:"hashed_password" yaml:"hashed_password"`
	UUID           string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
}

// Draft is a job definition that has not been stored yet.
type Draft struct {
	Model         string        `json:"model" yaml:"model" validate:"required"`
	Strategy      string        `json:"strategy" yaml:"strategy" validate:"required"`
	Optimizer     string        `json:"optimizer" yaml:"optimizer" validate:"required"`
	ServerAddress string        `json:"server_address" yaml:"server_address" validate:"required,hostname_port"`
	RedisAddress  string        `json:"redis_address" yaml:"redis_address" validate:"required,hostname_port"`
	ServerConfig  ServerConfig  `json:"server_config" yaml:"server_config"`
	Client        string        `json:"client" yaml:"client" validate:"required"`
	ClientsInfo   []ClientDraft `json:"clients_info" yaml:"clients_info" validate:"required,min=1,dive"`
}

// ServerConfig accepts either a mapping or a string holding a JSON object.
type ServerConfig map[string]any

func (c *ServerConfig) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*c = nil
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return c.fromJSONString(s)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("server_config must be a mapping: %w", err)
	}
	*c = m
	return nil
}

func (c *ServerConfig) UnmarshalYAML(node *yaml.Node) error {
	switch {
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		*c = nil
		return nil
	case node.Kind == yaml.ScalarNode:
		return c.fromJSONString(node.Value)
	case node.Kind == yaml.MappingNode:
		var m map[string]any
		if err := node.Decode(&m); err != nil {
			return err
		}
		*c = m
		return nil
	}
	return fmt.Errorf("server_config must be a mapping (line %d)", node.Line)
}

func (c *ServerConfig) fromJSONString(s string) error {
	if strings.TrimSpace(s) == "" {
		*c = nil
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return fmt.Errorf("server_config is not a JSON object: %w", err)
	}
	*c = m
	return nil
}

var validate = validator.New()

// Parse decodes a draft from data. It does not validate it.
func Parse(data []byte, format Format) (*Draft, error) {
	var d Draft
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse JSON job configuration: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse YAML job configuration: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &d, nil
}

// Validate checks required fields and address formats.
func (d *Draft) Validate() error {
	return validate.Struct(d)
}

// ServerConfigJSON encodes the server configuration as stored on the job.
func (d *Draft) ServerConfigJSON() (string, error) {
	if len(d.ServerConfig) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(d.ServerConfig)
	if err != nil {
		return "", fmt.Errorf("failed to encode server_config: %w", err)
	}
	return string(b), nil
}

// Clients converts the draft clients into domain values.
func (d *Draft) Clients() []domain.ClientInfo {
	clients := make([]domain.ClientInfo, 0, len(d.ClientsInfo))
	for _, c := range d.ClientsInfo {
		clients = append(clients, domain.ClientInfo{
			ServiceAddress: c.ServiceAddress,
			DataPath:       c.DataPath,
			RedisAddress:   c.RedisAddress,
			HashedPassword: c.HashedPassword,
			UUID:           c.UUID,
		})
	}
	return clients
}
