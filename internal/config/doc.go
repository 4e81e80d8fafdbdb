// Package config provides configuration parsing for the keenstore CLI.
//
// The configuration is stored in keenstore.json at the project root.
// This package handles loading and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "name": "counter-demo",
//	  "addr": ":8080",
//	  "metricsAddr": ":9090",
//	  "logLevel": "info",
//	  "logFormat": "text",
//	  "live": {
//	    "basePath": "/live",
//	    "origins": ["https://app.example.com"],
//	    "pingInterval": "30s",
//	    "maxSessions": 1000
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Addr:", cfg.Addr)
package config
