// Package config loads the service configuration from YAML, with
// MCS_* environment variables taking precedence over the file.
//
//	link:
//	  net:
//	    ip: 192.168.1.188
//	    port: 8888
//	sensor:
//	  kind: synthetic
//	  rate_hz: 100
//	  params:
//	    cam_front: cam_1
//	    lidar: laser
//	mqtt:
//	  broker: tcp://localhost:1883
//	health_addr: ":8080"
//
// Exactly one of link.net and link.serial must be present.
package config
