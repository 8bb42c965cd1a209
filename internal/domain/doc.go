// Package domain holds the value types shared by the registrar client, the
// email-domain client and the orchestrator: DNS records, sending domains,
// DKIM requirements and the provider error taxonomy.
//
// It imports nothing else from internal/ and carries no transport concerns.
package domain
