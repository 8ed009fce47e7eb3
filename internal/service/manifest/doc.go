// Package manifest generates the checksum manifest published with releases.
//
// It hashes every release archive in a directory and writes the flat
// "digest  filename" listing that the installer uses to verify downloads.
package manifest
