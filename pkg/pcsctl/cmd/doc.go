// Package cmd wires the pcsctl command tree: authentication, profile
// configuration, environment discovery, and raw API access.
package cmd
