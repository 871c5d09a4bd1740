// Package mcpclient manages the lifecycle of external MCP tool servers: the
// declarative server registry, per-server subprocess connections, and the
// process-wide initialization/teardown state machine.
package mcpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks a malformed tool-server registry configuration.
var ErrConfig = errors.New("invalid registry config")

// registryKey is the top-level collection key in the registry file.
const registryKey = "mcpServers"

// TransportStdio is the only supported transport kind. It is the default and
// may be omitted in the config.
const TransportStdio = "stdio"

// ServerDescriptor is one entry in the tool-server registry: how to launch an
// MCP server and what to tell it. Immutable once loaded.
type ServerDescriptor struct {
	Name      string
	Command   string
	Args      []string
	Env       map[string]string
	Transport string
}

type serverEntry struct {
	Command   string            `json:"command" yaml:"command"`
	Args      []string          `json:"args" yaml:"args"`
	Env       map[string]string `json:"env" yaml:"env"`
	Transport string            `json:"transport" yaml:"transport"`
}

// LoadRegistry reads server descriptors from a JSON or YAML registry file,
// preserving file order. A missing file, an empty path, or a file without the
// mcpServers collection are all valid "no remote servers" states and yield
// zero descriptors. Malformed content returns an error wrapping ErrConfig.
func LoadRegistry(path string) ([]ServerDescriptor, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mcpclient: read registry %s: %w", path, err)
	}

	var descriptors []ServerDescriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		descriptors, err = parseYAMLRegistry(data)
	default:
		descriptors, err = parseJSONRegistry(data)
	}
	if err != nil {
		return nil, fmt.Errorf("mcpclient: registry %s: %w", path, err)
	}

	for i := range descriptors {
		if err := validateDescriptor(&descriptors[i]); err != nil {
			return nil, fmt.Errorf("mcpclient: registry %s: %w", path, err)
		}
	}
	return descriptors, nil
}

func validateDescriptor(d *ServerDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("%w: server with empty name", ErrConfig)
	}
	if d.Command == "" {
		return fmt.Errorf("%w: server %q: command is required", ErrConfig, d.Name)
	}
	if d.Transport == "" {
		d.Transport = TransportStdio
	}
	if d.Transport != TransportStdio {
		return fmt.Errorf("%w: server %q: unsupported transport %q", ErrConfig, d.Name, d.Transport)
	}
	return nil
}

// parseJSONRegistry walks the document with a token decoder so descriptor
// order matches file order; a plain map would lose it.
func parseJSONRegistry(data []byte) ([]ServerDescriptor, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top-level value must be an object", ErrConfig)
	}

	var descriptors []ServerDescriptor
	seenKey := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		key, _ := keyTok.(string)

		if key != registryKey {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
			continue
		}

		seenKey = true
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			return nil, fmt.Errorf("%w: %s must be an object", ErrConfig, registryKey)
		}

		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
			name, _ := nameTok.(string)

			var entry serverEntry
			if err := dec.Decode(&entry); err != nil {
				return nil, fmt.Errorf("%w: server %q: %v", ErrConfig, name, err)
			}
			descriptors = append(descriptors, descriptorFromEntry(name, entry))
		}
		if _, err := dec.Token(); err != nil { // closing }
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	if !seenKey {
		return nil, nil
	}
	return descriptors, nil
}

func parseYAMLRegistry(data []byte) ([]ServerDescriptor, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top-level value must be a mapping", ErrConfig)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != registryKey {
			continue
		}
		servers := root.Content[i+1]
		if servers.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: %s must be a mapping", ErrConfig, registryKey)
		}

		var descriptors []ServerDescriptor
		for j := 0; j+1 < len(servers.Content); j += 2 {
			name := servers.Content[j].Value
			var entry serverEntry
			if err := servers.Content[j+1].Decode(&entry); err != nil {
				return nil, fmt.Errorf("%w: server %q: %v", ErrConfig, name, err)
			}
			descriptors = append(descriptors, descriptorFromEntry(name, entry))
		}
		return descriptors, nil
	}
	return nil, nil
}

func descriptorFromEntry(name string, entry serverEntry) ServerDescriptor {
	return ServerDescriptor{
		Name:      name,
		Command:   entry.Command,
		Args:      entry.Args,
		Env:       entry.Env,
		Transport: entry.Transport,
	}
}
