package gateway

import "time"

type Config struct {
	HTTPAddr        string        `envconfig:"WSGATE_HTTP_ADDR" default:"0.0.0.0:4000"`
	MetricsAddr     string        `envconfig:"WSGATE_METRICS_ADDR" default:"0.0.0.0:9090"`
	LogLevel        string        `envconfig:"WSGATE_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"WSGATE_SHUTDOWN_TIMEOUT" default:"30s"`

	BaseDomain string `envconfig:"WSGATE_BASE_DOMAIN" required:"true"`
	DataDir    string `envconfig:"WSGATE_DATA_DIR" default:"."`

	ProviderAPIKey  string `envconfig:"WSGATE_PROVIDER_API_KEY" required:"true"`
	ProviderAPIURL  string `envconfig:"WSGATE_PROVIDER_API_URL" required:"true"`
	ProviderAppName string `envconfig:"WSGATE_PROVIDER_APP_NAME" required:"true"`
	MachineImage    string `envconfig:"WSGATE_MACHINE_IMAGE" default:"registry.fly.io/wsgate-workspace:latest"`

	InactivityTimeout time.Duration `envconfig:"WSGATE_INACTIVITY_TIMEOUT" default:"30m"`
	ActorCallTimeout  time.Duration `envconfig:"WSGATE_ACTOR_CALL_TIMEOUT" default:"20s"`
	MachineOpTimeout  time.Duration `envconfig:"WSGATE_MACHINE_OP_TIMEOUT" default:"5s"`

	ProxyBodyLimit   int64         `envconfig:"WSGATE_PROXY_BODY_LIMIT" default:"10485760"`
	ChunkIdleTimeout time.Duration `envconfig:"WSGATE_PROXY_CHUNK_IDLE_TIMEOUT" default:"60s"`

	AuthCookie string `envconfig:"WSGATE_AUTH_COOKIE" default:"wsgate_auth"`
}
