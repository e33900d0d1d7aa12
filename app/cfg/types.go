package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir        string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Asset probing
	AssetCacheSize int
	AssetCacheTTL  int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
