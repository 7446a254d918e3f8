package config

import "time"

// getDefaultConfig retorna uma configuração padrão
func getDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			DisplayInterval: 20 * time.Millisecond,
		},
		Rig: RigConfig{
			Name:                 "mcb-rig",
			Host:                 "10.91.136.24",
			Port:                 8888,
			Delimiters:           "@\n",
			DialTimeout:          5 * time.Second,
			ReadTimeout:          1 * time.Second,
			WriteTimeout:         2 * time.Second,
			ReconnectDelay:       2 * time.Second,
			MaxConsecutiveErrors: 5,
			QueueSize:            1024,
			HistorySize:          2000,
			AutoConnect:          true,
			Debug:                false,
		},
		Pipeline: DefaultPipeline(),
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			Prefix:   "mcb_rig",
			Enabled:  false,
			TTL:      time.Minute,

			HistorySize:    600,
			UpdateInterval: 100 * time.Millisecond,
		},
		PLC: PLCConfig{
			Enabled:      false,
			Host:         "192.168.1.100",
			Rack:         0,
			Slot:         1,
			DBNumber:     20,
			UpdateRate:   200 * time.Millisecond,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			Enabled:         false,
			Broker:          "tcp://localhost:1883",
			ClientID:        "mcb-monitor",
			TopicPrefix:     "mcb",
			QoS:             0,
			PublishInterval: 100 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			Enabled:       true,
			BrowseRig:     false,
			BrowseTimeout: 3 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  true,
		},
	}
}

// DefaultPipeline retorna os parâmetros padrão do pipeline (ciclo de 50 Hz)
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		WindowSize:       100,
		MinOffsetSamples: 10,
		CycleDuration:    0.02,
		HistorySize:      100,
		RMSWindow:        20,
		MinRMSHistory:    11,
		FallbackScale:    0.1,
		DefaultImpedance: 0.23,
		DefaultVRMS:      230.0,
		TargetCurrent:    1000.0,
		PowerFactor:      0.8,
	}
}
