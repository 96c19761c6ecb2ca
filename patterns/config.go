package patterns

// Config holds the pattern store configuration.
type Config struct {
	Policy Policy `json:"policy" yaml:"policy"`

	// BaseInclude and BaseExclude are the hand-written rules every effective
	// set starts from.
	BaseInclude []string `json:"base_include" yaml:"base_include"`
	BaseExclude []string `json:"base_exclude" yaml:"base_exclude"`
}

func (c *Config) defaults() {
	c.Policy.defaults()
	if len(c.BaseInclude) == 0 {
		c.BaseInclude = []string{
			"**/*bell*",
			"**/*schedule*",
			"**/*hours*",
			"**/*timetable*",
		}
	}
	if len(c.BaseExclude) == 0 {
		c.BaseExclude = []string{
			"**/*athletic*",
			"**/*sports*",
			"**/*menu*",
			"**/*employment*",
			"**/*login*",
			"**/*.jpg",
			"**/*.png",
			"**/*.mp4",
		}
	}
}
