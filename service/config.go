package service

const (
	defaultPort      = 8080
	defaultLogLevel  = "info"
	defaultLogFormat = "plain"
	defaultKeystore  = "keystore.db"
)

var (
	emptyConfig   = Config{}
	defaultConfig = Config{Port: defaultPort, LogLevel: defaultLogLevel, LogFormat: defaultLogFormat, Keystore: defaultKeystore}
)

// Config represents the service configuration struct. Every field may be overridden
// by an environment variable (NEB_SIGNER_<FIELD>).
type Config struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"loglevel"`
	LogFormat string `yaml:"logformat"`
	URLs      string `yaml:"urls"` // comma separated node URLs, must be supplied by user

	ChainID    uint32 `yaml:"chainid"`    // zero means ask the node
	Keystore   string `yaml:"keystore"`   // path to the account record database
	Account    string `yaml:"account"`    // signing account address, must be supplied by user
	Passphrase string `yaml:"passphrase"` // unlocks Account, prefer the environment over the yaml file
}

// Sanitize will support a lazy user by ensuring that empty config file
// fields are replaced with default values.
func (c *Config) Sanitize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.Keystore == "" {
		c.Keystore = defaultKeystore
	}
}
