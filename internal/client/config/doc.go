// Package config loads the ramctl connection profile.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Environment: RAMD_ADDR and RAMD_TOKEN.
//
// Command-line flags parsed by ramctl itself override all three.
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "db1.internal:7400",
//	  "token_file": "/etc/ramd/admin.token",
//	  "ca_file": "/etc/ramd/ca.pem",
//	  "server_name": "ramd",
//	  "call_timeout": "15s"
//	}
//
// The token itself cannot be set in the file; point token_file at the
// file ramd writes its generated admin token to, or at any token file.
package config
