// Package agentdef resolves a subagent type to its definition file under
// .claude/agents and the skill files that definition preloads.
package agentdef

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agenthooks/internal/model"

	"gopkg.in/yaml.v3"
)

// Definition is an agent definition found on disk.
type Definition struct {
	Name        string
	Description string
	Skills      []string
	// Path is the definition file.
	Path string
	// SkillFiles are the SKILL.md files of Skills that exist.
	SkillFiles []string
}

// Lookup finds the definition for an agent type. Absence is reported with
// ok == false, never as an error.
type Lookup interface {
	Find(agentType string) (Definition, bool)
}

// Dir looks definitions up under a project's .claude directory.
type Dir struct {
	ProjectDir string
}

// NewDir returns a Lookup rooted at projectDir.
func NewDir(projectDir string) Dir {
	return Dir{ProjectDir: projectDir}
}

// AgentPath returns where the definition of agentType would live.
func (d Dir) AgentPath(agentType string) string {
	return filepath.Join(d.ProjectDir, ".claude", "agents", agentType+".md")
}

// SkillPath returns where the named skill would live.
func (d Dir) SkillPath(name string) string {
	return filepath.Join(d.ProjectDir, ".claude", "skills", name, "SKILL.md")
}

// Find probes the definition file for agentType. A definition whose
// frontmatter cannot be parsed is still reported, without skills.
func (d Dir) Find(agentType string) (Definition, bool) {
	if d.ProjectDir == "" || !validName(agentType) || agentType == model.UnknownAgentType {
		return Definition{}, false
	}

	path := d.AgentPath(agentType)
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, false
	}

	def := Definition{Path: path}
	fm, err := parseFrontmatter(string(data))
	if err != nil {
		return def, true
	}
	def.Name = fm.Name
	def.Description = fm.Description
	def.Skills = fm.Skills

	for _, name := range fm.Skills {
		if !validName(name) {
			continue
		}
		skill := d.SkillPath(name)
		if info, err := os.Stat(skill); err == nil && !info.IsDir() {
			def.SkillFiles = append(def.SkillFiles, skill)
		}
	}
	return def, true
}

// validName rejects names that would escape the lookup directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

type frontmatter struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Skills      skillList `yaml:"skills"`
}

// skillList accepts either a YAML sequence or a comma-separated string.
type skillList []string

func (s *skillList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var out []string
		for _, part := range strings.Split(node.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*s = out
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("skills: %w", err)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("skills: unsupported YAML kind %d", node.Kind)
	}
}

// parseFrontmatter decodes the YAML block delimited by --- lines at the top
// of a markdown file.
func parseFrontmatter(content string) (frontmatter, error) {
	var fm frontmatter

	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, "---") {
		return fm, nil
	}

	rest := content[3:]
	if strings.HasPrefix(rest, "\r\n") {
		rest = rest[2:]
	} else if strings.HasPrefix(rest, "\n") {
		rest = rest[1:]
	}

	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return fm, errors.New("closing frontmatter delimiter not found")
	}

	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
		return fm, fmt.Errorf("unmarshalling frontmatter: %w", err)
	}
	return fm, nil
}
