package configuration

import (
	"fmt"
	"os"
	"time"

	"github.com/markusressel/heat2go/internal/ui"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

type Configuration struct {
	DbPath string `json:"dbPath"`

	SensorPollingRate       time.Duration `json:"sensorPollingRate"`
	SensorRollingWindowSize int           `json:"sensorRollingWindowSize"`

	ControllerTickRate time.Duration `json:"controllerTickRate"`
	// interval in which learned state is written to the database
	PersistInterval time.Duration `json:"persistInterval"`

	Sensors  []SensorConfig `json:"sensors"`
	Zones    []ZoneConfig   `json:"zones"`
	Coupling CouplingConfig `json:"coupling"`

	Statistics StatisticsConfig `json:"statistics"`
	Api        ApiConfig        `json:"api"`
	Profiling  ProfilingConfig  `json:"profiling"`
}

var CurrentConfig Configuration

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	viper.SetConfigName("heat2go")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			ui.Error("Couldn't detect home directory: %v", err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.AddConfigPath("/etc/heat2go/")
	}

	viper.AutomaticEnv() // read in environment variables that match

	setDefaultValues()
}

func setDefaultValues() {
	viper.SetDefault("dbPath", "/etc/heat2go/heat2go.db")

	viper.SetDefault("sensorPollingRate", 10*time.Second)
	viper.SetDefault("sensorRollingWindowSize", 6)
	viper.SetDefault("controllerTickRate", 30*time.Second)
	viper.SetDefault("persistInterval", 5*time.Minute)

	viper.SetDefault("sensors", []SensorConfig{})
	viper.SetDefault("zones", []ZoneConfig{})

	viper.SetDefault("coupling.enabled", true)
	viper.SetDefault("coupling.feedforwardGain", DefaultFeedforwardGain)
	viper.SetDefault("coupling.maxFeedforward", DefaultMaxFeedforward)

	viper.SetDefault("statistics.enabled", false)
	viper.SetDefault("statistics.port", 9000)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.host", "localhost")
	viper.SetDefault("api.port", 9001)

	viper.SetDefault("profiling.enabled", false)
	viper.SetDefault("profiling.host", "localhost")
	viper.SetDefault("profiling.port", 6060)
}

// DetectConfigFile reads the config file found by viper and returns its path
func DetectConfigFile() string {
	if err := viper.ReadInConfig(); err != nil {
		// config file is required, so we fail here
		ui.Fatal("Error reading config file, %s", err)
	}
	// this is only populated _after_ ReadInConfig()
	return viper.ConfigFileUsed()
}

// LoadConfig decodes the configuration read by viper into CurrentConfig
func LoadConfig() {
	config, err := decodeConfig(viper.GetViper())
	if err != nil {
		ui.Fatal("unable to decode into struct, %v", err)
	}
	CurrentConfig = config
}

func decodeConfig(v *viper.Viper) (Configuration, error) {
	var config Configuration
	if err := v.Unmarshal(&config, viper.DecodeHook(decodeHooks())); err != nil {
		return Configuration{}, fmt.Errorf("decode configuration: %w", err)
	}
	return config, nil
}
