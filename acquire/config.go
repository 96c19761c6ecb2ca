package acquire

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/bellscout/extract"
	"github.com/hazyhaar/bellscout/fetch"
	"github.com/hazyhaar/bellscout/llm"
	"github.com/hazyhaar/bellscout/mapper"
	"github.com/hazyhaar/bellscout/patterns"
	"github.com/hazyhaar/bellscout/render"
	"github.com/hazyhaar/bellscout/scoring"
)

// Config aggregates the configuration of every pipeline stage.
type Config struct {
	// OutputRoot is the root of the job directory tree. Default: "output".
	OutputRoot string `json:"output_root" yaml:"output_root"`

	// DBPath is the SQLite file holding jobs, attempts and patterns.
	// Default: "db/bellscout.db".
	DBPath string `json:"db_path" yaml:"db_path"`

	// AllowPrivateHosts skips the SSRF check on job and document URLs.
	AllowPrivateHosts bool `json:"allow_private_hosts" yaml:"allow_private_hosts"`

	// MinCandidateScore is the ranker score a URL needs to be fetched. Default: 0.3.
	MinCandidateScore float64 `json:"min_candidate_score" yaml:"min_candidate_score"`

	// TopN caps how many ranked URLs are fetched per job. Default: 5.
	TopN int `json:"top_n" yaml:"top_n"`

	// NotFoundThreshold 404s in one job stop the remaining fetches. Default: 3.
	NotFoundThreshold int `json:"not_found_threshold" yaml:"not_found_threshold"`

	// TriageMaxChars bounds the document text sent to the triage model.
	TriageMaxChars int `json:"triage_max_chars" yaml:"triage_max_chars"`

	// BatchConcurrency is how many keys RunBatch processes at once. Default: 4.
	BatchConcurrency int `json:"batch_concurrency" yaml:"batch_concurrency"`

	Mapper   mapper.Config   `json:"mapper" yaml:"mapper"`
	Fetch    fetch.Config    `json:"fetch" yaml:"fetch"`
	Render   render.Config   `json:"render" yaml:"render"`
	LLM      llm.Config      `json:"llm" yaml:"llm"`
	Extract  extract.Config  `json:"extract" yaml:"extract"`
	Patterns patterns.Config `json:"patterns" yaml:"patterns"`
	Prompts  Prompts         `json:"prompts" yaml:"prompts"`
}

// Prompts overrides the built-in scorer prompts.
type Prompts struct {
	Rank   scoring.Prompt `json:"rank" yaml:"rank"`
	Triage scoring.Prompt `json:"triage" yaml:"triage"`
}

func (c *Config) defaults() {
	if c.OutputRoot == "" {
		c.OutputRoot = "output"
	}
	if c.DBPath == "" {
		c.DBPath = "db/bellscout.db"
	}
	if c.MinCandidateScore <= 0 {
		c.MinCandidateScore = 0.3
	}
	if c.TopN <= 0 {
		c.TopN = 5
	}
	if c.NotFoundThreshold <= 0 {
		c.NotFoundThreshold = 3
	}
	if c.TriageMaxChars <= 0 {
		c.TriageMaxChars = 12000
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}
	if c.AllowPrivateHosts {
		c.Fetch.AllowPrivateHosts = true
	}
}

// LoadConfigFile reads a YAML config. Unset fields keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("acquire: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("acquire: parse config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}

// BatchEntry is one job of a batch file.
type BatchEntry struct {
	Key   string `json:"key" yaml:"key"`
	URL   string `json:"url" yaml:"url"`
	Name  string `json:"name" yaml:"name"`
	State string `json:"state" yaml:"state"`
}

// LoadBatchFile reads a YAML list of batch entries.
func LoadBatchFile(path string) ([]BatchEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("acquire: read batch: %w", err)
	}
	var entries []BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("acquire: parse batch %s: %w", path, err)
	}
	return entries, nil
}
