// Package ctl implements ramctl, the operator command line for the ramd
// control-plane API.
//
// Usage:
//
//	ramctl [-c profile] [-a addr] [-t token | -token-file file] [-ca file] <command> [flags]
//
// Defaults come from the profile and the environment (see package config).
// Passwords are always read from
// the terminal, never from flags.
package ctl
