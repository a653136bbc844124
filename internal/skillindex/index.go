// Package skillindex locates installed skill and agent definitions and
// matches free-text prompts against them. Detection is two-stage: a
// cheap keyword check decides whether a prompt might name a skill at
// all, and only then is the filesystem index consulted.
package skillindex

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
)

// Entry is one discovered skill or agent definition.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Match pairs an entry with its similarity to a query.
type Match struct {
	Entry
	Score float64 `json:"score"`
}

// quickTerms trigger the second detection stage. The first stage must
// stay cheap enough to run on every routed prompt.
var quickTerms = []string{"skill", "agent", "subagent", "workflow"}

// QuickDetect reports whether a prompt plausibly references a skill or
// agent by name. It is a pure string check and never touches the
// filesystem.
func QuickDetect(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, term := range quickTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Index scans configured roots for skill and agent definitions. Scanning
// is lazy: roots are read on first match call and cached for the life of
// the index.
type Index struct {
	skillRoots []string
	agentRoots []string
	logger     *zap.Logger

	once   sync.Once
	skills []Entry
	agents []Entry
}

// NewIndex creates an Index over the given roots. A nil logger disables
// logging.
func NewIndex(skillRoots, agentRoots []string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		skillRoots: skillRoots,
		agentRoots: agentRoots,
		logger:     logger,
	}
}

// Skills returns all discovered skill entries, scanning on first use.
func (i *Index) Skills() []Entry {
	i.scan()
	return i.skills
}

// Agents returns all discovered agent entries, scanning on first use.
func (i *Index) Agents() []Entry {
	i.scan()
	return i.agents
}

// MatchSkills scores every known skill against the query and returns
// matches sorted best-first. Entries with zero score are dropped.
func (i *Index) MatchSkills(query string) []Match {
	i.scan()
	return match(query, i.skills)
}

// MatchAgents scores every known agent against the query.
func (i *Index) MatchAgents(query string) []Match {
	i.scan()
	return match(query, i.agents)
}

func (i *Index) scan() {
	i.once.Do(func() {
		for _, root := range i.skillRoots {
			i.skills = append(i.skills, scanRoot(root, i.logger)...)
		}
		for _, root := range i.agentRoots {
			i.agents = append(i.agents, scanRoot(root, i.logger)...)
		}
		i.logger.Debug("scanned skill roots",
			zap.Int("skills", len(i.skills)),
			zap.Int("agents", len(i.agents)))
	})
}

// scanRoot reads one root directory. A subdirectory is an entry named
// after the directory; a standalone markdown file is an entry named
// after the file. Frontmatter name/description fields override the
// filesystem name when present.
func scanRoot(root string, logger *zap.Logger) []Entry {
	dirents, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("reading skill root", zap.String("root", root), zap.Error(err))
		}
		return nil
	}
	var entries []Entry
	for _, d := range dirents {
		path := filepath.Join(root, d.Name())
		if d.IsDir() {
			e := Entry{Name: d.Name(), Path: path}
			for _, candidate := range []string{"SKILL.md", "AGENT.md", "README.md"} {
				if name, desc, ok := readFrontmatter(filepath.Join(path, candidate)); ok {
					if name != "" {
						e.Name = name
					}
					e.Description = desc
					break
				}
			}
			entries = append(entries, e)
			continue
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			continue
		}
		e := Entry{
			Name: strings.TrimSuffix(d.Name(), ".md"),
			Path: path,
		}
		if name, desc, ok := readFrontmatter(path); ok {
			if name != "" {
				e.Name = name
			}
			e.Description = desc
		}
		entries = append(entries, e)
	}
	return entries
}

// readFrontmatter pulls name and description out of a YAML frontmatter
// block delimited by --- lines. Only flat key: value lines are read.
func readFrontmatter(path string) (name, desc string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "---" {
		return "", "", true
	}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "---" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "name":
			name = value
		case "description":
			desc = value
		}
	}
	return name, desc, true
}

func match(query string, entries []Entry) []Match {
	var out []Match
	for _, e := range entries {
		if s := Similarity(query, e.Name); s > 0 {
			out = append(out, Match{Entry: e, Score: s})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

// Similarity scores how well a query refers to a name, blending token
// overlap with edit distance so that both "code review" vs
// "code-reviewer" and minor typos score well. Result is in [0, 1].
func Similarity(query, name string) float64 {
	q := normalize(query)
	n := normalize(name)
	if q == "" || n == "" {
		return 0
	}
	return 0.7*tokenOverlap(q, n) + 0.3*editSimilarity(q, n)
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.', '/':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// tokenOverlap is the fraction of name tokens present in the query.
func tokenOverlap(query, name string) float64 {
	nameTokens := strings.Fields(name)
	if len(nameTokens) == 0 {
		return 0
	}
	queryTokens := make(map[string]bool)
	for _, t := range strings.Fields(query) {
		queryTokens[t] = true
	}
	hits := 0
	for _, t := range nameTokens {
		if queryTokens[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(nameTokens))
}

func editSimilarity(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	if d >= longest {
		return 0
	}
	return 1 - float64(d)/float64(longest)
}
