package config

import (
	"github.com/spf13/viper"
)

// RedisConfiguration defines the redis connection settings
type RedisConfiguration struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisConfig retrieves the redis configuration
func RedisConfig() *RedisConfiguration {
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)

	return &RedisConfiguration{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetString("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
	}
}
