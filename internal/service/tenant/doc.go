// Package tenant is the tenant lifecycle entry point for email-domain
// provisioning. It validates the handle, serializes runs per handle with a
// distributed lock, delegates to the provisioning orchestrator and records
// every run in the journal.
//
// The orchestrator never fails a run as a whole; this package only returns
// errors for requests it refuses to start.
package tenant
