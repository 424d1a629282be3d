package model

import "time"

// Challenge is a server-issued nonce, valid for a single authorization attempt
type Challenge struct {
	Value    string
	IssuedAt time.Time
}

// EncryptedEnvelope holds base64 encoded output of the encryption engine.
// WrappedKey and IV are only set for encrypted documents.
type EncryptedEnvelope struct {
	CipherText string `json:"cipher_text"`
	WrappedKey string `json:"wrapped_key,omitempty"`
	IV         string `json:"iv,omitempty"`
}

// SubmissionResult is the Service's acknowledgement of a sent document
type SubmissionResult struct {
	ReferenceNumber string    `json:"reference_number"`
	ProcessingCode  int       `json:"processing_code"`
	Description     string    `json:"description"`
	IssuedAt        time.Time `json:"issued_at"`
}

// StatusSnapshot is the processing state of a submitted document
type StatusSnapshot struct {
	ProcessingCode       int       `json:"processing_code"`
	Description          string    `json:"description,omitempty"`
	KSeFReferenceNumber  string    `json:"ksef_reference_number,omitempty"`
	AcquisitionTimestamp time.Time `json:"acquisition_timestamp,omitempty"`
}

// Processing codes returned by the Service
const (
	ProcessingCodeAccepted = 200
	ProcessingCodeRejected = 400
)

// Decision maps a processing code onto a document status.
// Codes below 400 other than 200 mean processing is still in progress.
func (s StatusSnapshot) Decision() InvoiceStatus {
	switch {
	case s.ProcessingCode == ProcessingCodeAccepted:
		return StatusAccepted
	case s.ProcessingCode >= ProcessingCodeRejected:
		return StatusRejected
	default:
		return StatusSent
	}
}
