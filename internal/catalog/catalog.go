// Package catalog is the LEGACORE agent registry.
//
// The built-in catalog ships embedded as agents.yaml. An optional overlay
// directory of *.yaml files can add agents or replace built-in ones by id.
// A Catalog is read-only after construction and safe for concurrent use.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

//go:embed agents.yaml
var builtinAgents []byte

// Catalog holds agent definitions keyed by id, in catalog order.
type Catalog struct {
	order []string
	byID  map[string]*models.AgentConfig
}

// New builds a catalog from agent definitions. Later definitions replace
// earlier ones with the same id.
func New(agents []models.AgentConfig) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*models.AgentConfig, len(agents))}
	for i := range agents {
		a := agents[i]
		if err := validate(&a); err != nil {
			return nil, err
		}
		if _, exists := c.byID[a.ID]; !exists {
			c.order = append(c.order, a.ID)
		}
		c.byID[a.ID] = &a
	}
	return c, nil
}

// Builtin returns the embedded catalog.
func Builtin() (*Catalog, error) {
	agents, err := parse(builtinAgents, "agents.yaml")
	if err != nil {
		return nil, err
	}
	return New(agents)
}

// Load returns the embedded catalog overlaid with the agent files in dir.
// An empty or missing dir yields the embedded catalog.
func Load(dir string) (*Catalog, error) {
	agents, err := parse(builtinAgents, "agents.yaml")
	if err != nil {
		return nil, err
	}
	if dir != "" {
		extra, err := loadDir(dir)
		if err != nil {
			return nil, err
		}
		agents = append(agents, extra...)
	}

	c, err := New(agents)
	if err != nil {
		return nil, err
	}
	log.Info().Int("agents", len(c.order)).Str("overlay", dir).Msg("Agent catalog loaded")
	return c, nil
}

// parse accepts either a single agent mapping or a list of agents.
func parse(b []byte, source string) ([]models.AgentConfig, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var agents []models.AgentConfig
		if err := root.Decode(&agents); err != nil {
			return nil, fmt.Errorf("parse %s: %w", source, err)
		}
		return agents, nil
	}

	var a models.AgentConfig
	if err := root.Decode(&a); err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	return []models.AgentConfig{a}, nil
}

func loadDir(dir string) ([]models.AgentConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var agents []models.AgentConfig
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		items, err := parse(b, path)
		if err != nil {
			return nil, err
		}
		agents = append(agents, items...)
	}
	return agents, nil
}

func validate(a *models.AgentConfig) error {
	if a.ID == "" {
		return fmt.Errorf("agent %q: id is required", a.Name)
	}
	if a.Name == "" {
		return fmt.Errorf("agent %s: name is required", a.ID)
	}
	if a.Version == "" {
		a.Version = models.DefaultAgentVersion
	}
	if !models.IsSemver(a.Version) {
		return fmt.Errorf("agent %s: version %q is not semver", a.ID, a.Version)
	}
	seen := make(map[string]bool, len(a.Tools))
	for _, t := range a.Tools {
		if t.Name == "" {
			return fmt.Errorf("agent %s: tool without a name", a.ID)
		}
		if seen[t.Name] {
			return fmt.Errorf("agent %s: duplicate tool %s", a.ID, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// Get returns the agent with id.
func (c *Catalog) Get(id string) (*models.AgentConfig, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// List returns every agent in catalog order.
func (c *Catalog) List() []*models.AgentConfig {
	out := make([]*models.AgentConfig, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Active returns the active agents.
func (c *Catalog) Active() []*models.AgentConfig {
	var out []*models.AgentConfig
	for _, a := range c.List() {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

// ByCategory returns the active agents in category.
func (c *Catalog) ByCategory(category string) []*models.AgentConfig {
	var out []*models.AgentConfig
	for _, a := range c.Active() {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range c.List() {
		if !seen[a.Category] {
			seen[a.Category] = true
			out = append(out, a.Category)
		}
	}
	return out
}

// Tools returns the tools declared by agentID, or nil.
func (c *Catalog) Tools(agentID string) []models.AgentTool {
	if a, ok := c.byID[agentID]; ok {
		return a.Tools
	}
	return nil
}

// HasTool reports whether agentID declares tool.
func (c *Catalog) HasTool(agentID, tool string) bool {
	a, ok := c.byID[agentID]
	if !ok {
		return false
	}
	_, ok = a.Tool(tool)
	return ok
}

// Tool returns agentID's tool named tool.
func (c *Catalog) Tool(agentID, tool string) (models.AgentTool, bool) {
	a, ok := c.byID[agentID]
	if !ok {
		return models.AgentTool{}, false
	}
	return a.Tool(tool)
}
