package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Seed is the initial connector and playbook set.
type Seed struct {
	Connectors []domain.Connector
	Playbooks  []domain.Playbook
}

type seedFile struct {
	Connectors []connectorSeed `yaml:"connectors"`
	Playbooks  []playbookSeed  `yaml:"playbooks"`
}

type connectorSeed struct {
	ID                 string      `yaml:"id"`
	Type               string      `yaml:"type"`
	Name               string      `yaml:"name"`
	Enabled            bool        `yaml:"enabled"`
	LastSyncAgo        string      `yaml:"last_sync_ago"`
	DocumentsProcessed int         `yaml:"documents_processed"`
	Icon               string      `yaml:"icon"`
	Description        string      `yaml:"description"`
	Errors             []errorSeed `yaml:"errors"`
}

type errorSeed struct {
	ID       string `yaml:"id"`
	Age      string `yaml:"age"`
	Type     string `yaml:"type"`
	Message  string `yaml:"message"`
	Details  string `yaml:"details"`
	Severity string `yaml:"severity"`
}

type playbookSeed struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Rule        string   `yaml:"rule"`
	Active      bool     `yaml:"active"`
	Runs        int      `yaml:"runs"`
	SuccessRate float64  `yaml:"success_rate"`
	LastRunAgo  string   `yaml:"last_run_ago"`
	Category    string   `yaml:"category"`
	Triggers    []string `yaml:"triggers"`
	Actions     []string `yaml:"actions"`
}

// LoadFile reads the seed at path, or the embedded default when path is empty.
func LoadFile(path string, now time.Time) (Seed, error) {
	if path == "" {
		return Load(bytes.NewReader(defaultCatalog), now)
	}
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, now)
}

// Load decodes a YAML seed, resolving relative *_ago offsets against now.
func Load(r io.Reader, now time.Time) (Seed, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("decode catalog: %w", err)
	}

	out := Seed{
		Connectors: make([]domain.Connector, 0, len(file.Connectors)),
		Playbooks:  make([]domain.Playbook, 0, len(file.Playbooks)),
	}
	seen := make(map[string]struct{})
	for _, c := range file.Connectors {
		if c.ID == "" {
			return Seed{}, fmt.Errorf("connector %q: id is required", c.Name)
		}
		if _, dup := seen["c:"+c.ID]; dup {
			return Seed{}, fmt.Errorf("duplicate connector id %q", c.ID)
		}
		seen["c:"+c.ID] = struct{}{}

		lastSync, err := ago(now, c.LastSyncAgo)
		if err != nil {
			return Seed{}, fmt.Errorf("connector %s last_sync_ago: %w", c.ID, err)
		}
		connector := domain.Connector{
			ID:                 c.ID,
			Type:               c.Type,
			Name:               c.Name,
			Enabled:            c.Enabled,
			LastSync:           lastSync,
			DocumentsProcessed: c.DocumentsProcessed,
			Icon:               c.Icon,
			Description:        c.Description,
		}
		for _, e := range c.Errors {
			at, err := ago(now, e.Age)
			if err != nil {
				return Seed{}, fmt.Errorf("connector %s error %s age: %w", c.ID, e.ID, err)
			}
			connectorErr := domain.ConnectorError{
				ID:       e.ID,
				Type:     e.Type,
				Message:  e.Message,
				Details:  e.Details,
				Severity: e.Severity,
			}
			if at != nil {
				connectorErr.Timestamp = *at
			}
			connector.Errors = append(connector.Errors, connectorErr)
		}
		out.Connectors = append(out.Connectors, connector)
	}

	for _, p := range file.Playbooks {
		if p.ID == "" || p.Name == "" || p.Rule == "" {
			return Seed{}, fmt.Errorf("playbook %q: id, name and rule are required", p.ID)
		}
		if _, dup := seen["p:"+p.ID]; dup {
			return Seed{}, fmt.Errorf("duplicate playbook id %q", p.ID)
		}
		seen["p:"+p.ID] = struct{}{}

		lastRun, err := ago(now, p.LastRunAgo)
		if err != nil {
			return Seed{}, fmt.Errorf("playbook %s last_run_ago: %w", p.ID, err)
		}
		out.Playbooks = append(out.Playbooks, domain.Playbook{
			ID:          p.ID,
			Name:        p.Name,
			Rule:        p.Rule,
			Active:      p.Active,
			Runs:        p.Runs,
			LastRun:     lastRun,
			SuccessRate: p.SuccessRate,
			Category:    p.Category,
			Triggers:    p.Triggers,
			Actions:     p.Actions,
		})
	}
	return out, nil
}

func ago(now time.Time, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, err
	}
	if d < 0 {
		return nil, fmt.Errorf("negative offset %s", raw)
	}
	t := now.Add(-d).UTC()
	return &t, nil
}
