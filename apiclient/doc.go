// Package apiclient is the thin typed client for the remote OneFlow REST
// API. The contract is fixed and external: this package maps statuses and
// transport failures onto its sentinel errors and hands identity payloads
// back as raw JSON, leaving validation to the session store boundary.
package apiclient
