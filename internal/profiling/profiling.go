// Package profiling optionally attaches a continuous profiler to a
// running GhostTalk process.
package profiling

// Settings are read from the environment when profiling is compiled in.
type Settings struct {
	ServerAddress string `env:"PYROSCOPE_SERVER_ADDRESS"`
	AppName       string `env:"PYROSCOPE_APP_NAME" envDefault:"ghosttalk"`
	ServiceTag    string `env:"PYROSCOPE_SERVICE_TAG"`
}
