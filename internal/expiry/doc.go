// Package expiry provides a generic time-limited cache for transient state,
// such as in-flight authorization flows that must be redeemed within a window.
package expiry
