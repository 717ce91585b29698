package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:   "info",
			WebsiteURL: "https://popmap.example.org",
			GithubURL:  "https://github.com/popmap/popmap",
		},
		Store: StoreConfig{
			DBPath: "~/.popmap/popmap.db",
		},
		Dispatch: DispatchConfig{
			HandlerTimeoutSeconds: 15,
			MaxInFlight:           64,
			BusSize:               100,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "popmap",
			SampleRatio: 1,
		},
	}
}
