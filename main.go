package main

import (
	"fermata/cmd"
	"fermata/config"
	"fermata/logger"
)

func main() {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	cmd.Execute()
}
