// Package config loads, validates and defaults the daemon
// configuration.
//
// Configuration comes from a YAML file, with LIVELOGIC_-prefixed
// environment variables overriding individual fields afterwards, so
// tokens and passwords stay out of the file. Load runs validation and
// fills defaults; the rest of the daemon treats the returned Config as
// read-only.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.OSC.Host)
package config
