// Package ksef is the public API of the KSeF connector.
//
// A Connector authorizes a taxpayer against the national e-invoice clearing
// service, submits invoices and follows them until the Service accepts or
// rejects them.
//
// Example usage:
//
//	conn, err := ksef.New(ksef.Options{
//	    Environment: ksef.Test,
//	    Store:       ksef.NewMemoryStore(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	switch out := conn.Connect(ctx, "1234567890", token, "ACME").(type) {
//	case ksef.Success:
//	    fmt.Println("connected")
//	case ksef.Failure:
//	    fmt.Println(out)
//	}
package ksef

import (
	"github.com/rezonia/ksef-connector/internal/credentials"
	protocol "github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
	"github.com/rezonia/ksef-connector/internal/poller"
)

// Re-export core types for public API
type (
	Credentials      = model.Credentials
	Invoice          = model.Invoice
	LineItem         = model.LineItem
	Party            = model.Party
	InvoiceStatus    = model.InvoiceStatus
	SubmissionResult = model.SubmissionResult
	StatusSnapshot   = model.StatusSnapshot
	Environment      = protocol.Environment
	DownloadResponse = protocol.DownloadResponse
	PollResult       = poller.Result
)

// Re-export outcome variants
type (
	Outcome = model.Outcome
	Success = model.Success
	Failure = model.Failure
	Pending = model.Pending
)

// Re-export environments
var (
	Test       = protocol.Test
	Production = protocol.Production
)

// Re-export invoice statuses
const (
	StatusDraft    = model.StatusDraft
	StatusSent     = model.StatusSent
	StatusAccepted = model.StatusAccepted
	StatusRejected = model.StatusRejected
)

// Re-export poll results
const (
	PollDone  = poller.Done
	PollRetry = poller.Retry
)

// Re-export error types
type (
	TransportError    = protocol.TransportError
	HTTPError         = protocol.HTTPError
	ProtocolError     = protocol.ProtocolError
	EncryptionError   = model.EncryptionError
	PreconditionError = model.PreconditionError
)

// NewMemoryStore returns a non-persistent credential store
func NewMemoryStore() *credentials.MemoryStore {
	return credentials.NewMemoryStore()
}
