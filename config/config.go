package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Configuration aggregates every configuration concern of the service
type Configuration struct {
	Server       ServerConfiguration
	Database     DatabaseConfiguration
	Redis        RedisConfiguration
	Auth         AuthConfiguration
	OCPay        OCPayConfiguration
	Reconcile    ReconcileConfiguration
	Notification NotificationConfiguration
}

// SetupConfig loads the env file (if any) into viper and binds the process environment.
// A missing env file is not an error; every setting has a default or comes from the environment.
func SetupConfig() error {
	viper.AddConfigPath("../../../..")
	viper.AddConfigPath("../../..")
	viper.AddConfigPath("../..")
	viper.AddConfigPath("..")
	viper.AddConfigPath(".")

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	viper.SetConfigName(envFilePath)
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	return nil
}

// Load builds the full configuration from the current viper state
func Load() *Configuration {
	return &Configuration{
		Server:       *ServerConfig(),
		Database:     *DBConfig(),
		Redis:        *RedisConfig(),
		Auth:         *AuthConfig(),
		OCPay:        *OCPayConfig(),
		Reconcile:    *ReconcileConfig(),
		Notification: *NotificationConfig(),
	}
}

func init() {
	if err := SetupConfig(); err != nil {
		panic(fmt.Sprintf("config SetupConfig() error: %s", err))
	}
}
