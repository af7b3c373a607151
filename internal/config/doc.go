// Package config loads the server configuration.
//
// Values come from, in increasing priority: built-in defaults, a
// datastar.json (or .yaml/.toml) file, and DATASTAR_* environment
// variables where dots become underscores:
//
//	DATASTAR_SERVER_ADDR=:9000
//	DATASTAR_SESSION_DRIVER=redis
//	DATASTAR_SIGNALS_ENCRYPTION_KEY=base64:...
//
// # Configuration File Structure
//
//	{
//	  "server":   {"addr": ":8080", "base_url": "https://app.example.com"},
//	  "session":  {"driver": "redis", "redis_addr": "localhost:6379"},
//	  "signals":  {"param": "datastar", "max_body_bytes": 1048576},
//	  "redirect": {"delay": "100ms"},
//	  "metrics":  {"enabled": true, "path": "/metrics"},
//	  "tracing":  {"enabled": false}
//	}
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Listening on", cfg.Server.Addr)
package config
