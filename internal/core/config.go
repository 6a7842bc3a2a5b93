package core

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// server components.
type Config struct {
	// Hostname or IP address on which the servers will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// IP broadcast to clients when they're redirected between servers.
	ExternalIP string `mapstructure:"external_ip"`
	// Maximum number of concurrent connections the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Root of the data directory tree (system/, quests/, ep3/, patches/, dol/).
	DataDir string `mapstructure:"data_dir"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Database struct {
		// Database engine; either sqlite or postgres.
		Engine string `mapstructure:"engine"`
		// File to which the sqlite database will be written.
		Filename string `mapstructure:"filename"`
		// Hostname of the Postgres database instance.
		Host string `mapstructure:"host"`
		// Port on db_host on which the Postgres instance is accepting connections.
		Port int `mapstructure:"port"`
		// Name of the database for the server.
		Name string `mapstructure:"name"`
		// Username and password of a user with full RW privileges to ${db_name}.
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	GameServer struct {
		// Local ports on which the server terminates game clients, one per dialect.
		V1Port        int `mapstructure:"v1_port"`
		V2Port        int `mapstructure:"v2_port"`
		V3Port        int `mapstructure:"v3_port"`
		V3ConsolePort int `mapstructure:"v3_console_port"`
		V4Port        int `mapstructure:"v4_port"`
		// Number of chat lobbies created at startup.
		NumLobbies int `mapstructure:"num_lobbies"`
		// Whether games track items authoritatively where the dialect allows it.
		ItemTracking bool `mapstructure:"item_tracking"`
		// Whether cheat flags may be enabled on rooms at all.
		CheatsAllowed bool `mapstructure:"cheats_allowed"`
		// Length of the first decrypted command the key detector matches against.
		ExpectedFirstCommandSize int `mapstructure:"expected_first_command_size"`
	} `mapstructure:"game_server"`

	ProxyServer struct {
		// Port on which the proxy accepts one client. Zero disables the proxy.
		Port int `mapstructure:"port"`
		// Remote server to which proxied sessions connect.
		RemoteHost string `mapstructure:"remote_host"`
		RemotePort int    `mapstructure:"remote_port"`
		// Dialect spoken on both legs of the proxy (v1, v2, v3, v3_console).
		Dialect string `mapstructure:"dialect"`
	} `mapstructure:"proxy_server"`

	Ep3 struct {
		// Behavior flag bitmask for the card battle data index (see ep3.BehaviorFlag).
		BehaviorFlags uint32 `mapstructure:"behavior_flags"`
	} `mapstructure:"ep3"`

	Debugging struct {
		// Enable pprof for the server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log decrypted packets.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`

	cachedIPBytes [4]byte
}

const envVarPrefix = "RAGOL"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) *Config {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("error reading config file: %v\n", err)
		os.Exit(1)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			fmt.Printf("error binding %s to %s\n", k, envVarPrefix+"_"+envVar)
			os.Exit(1)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		fmt.Printf("error unmarshaling config object: %v\n", err)
		os.Exit(1)
	}
	return config
}

// Directories under the data dir, one per kind of server asset.
func (c *Config) SystemDir() string { return filepath.Join(c.DataDir, "system") }
func (c *Config) QuestDir() string  { return filepath.Join(c.DataDir, "quests") }
func (c *Config) Ep3Dir() string    { return filepath.Join(c.DataDir, "ep3") }
func (c *Config) PatchDir() string  { return filepath.Join(c.DataDir, "patches") }
func (c *Config) DOLDir() string    { return filepath.Join(c.DataDir, "dol") }

// KeyDir returns the directory containing the V4 private key pool.
func (c *Config) KeyDir() string { return filepath.Join(c.SystemDir(), "keys") }

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns the Postgres connection string derived from the config.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// BroadcastIP converts the configured external IP string into bytes in the
// order in which they'll be written to the redirect packets.
func (c *Config) BroadcastIP() [4]byte {
	// Hacky, but chances are the IP address isn't going to change while the
	// server is running and this saves us from having to do the conversion
	// every time the redirect packet is sent.
	if c.cachedIPBytes[0] == 0x00 {
		parts := net.ParseIP(c.ExternalIP).To4()
		for i := 0; i < 4; i++ {
			c.cachedIPBytes[i] = parts[i]
		}
	}
	return c.cachedIPBytes
}
