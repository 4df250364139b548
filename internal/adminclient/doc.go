// Package adminclient is a small HTTP client for the switchboard admin API,
// used by switchboard-admin and the serve command's health probe.
package adminclient
