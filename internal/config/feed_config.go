package config

// FeedConfig defines RSS output
type FeedConfig struct {
	OutputDir   string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	SiteURL     string `json:"site_url,omitempty" yaml:"site_url,omitempty" validate:"omitempty,url"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	MaxItems    int    `json:"max_items,omitempty" yaml:"max_items,omitempty" validate:"omitempty,min=1"`
}

// NewDefaultFeedConfig creates default feed configuration
func NewDefaultFeedConfig() FeedConfig {
	return FeedConfig{
		OutputDir:   DefaultFeedOutputDir,
		Title:       DefaultFeedTitle,
		Description: DefaultFeedDescription,
		MaxItems:    DefaultFeedMaxItems,
	}
}

// MetricsConfig defines where run metrics are exported. An empty path
// disables the export.
type MetricsConfig struct {
	TextfilePath string `json:"textfile_path,omitempty" yaml:"textfile_path,omitempty"`
}

// NewDefaultMetricsConfig creates default metrics configuration
func NewDefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{}
}
