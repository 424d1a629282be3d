package ksef

// ContextIdentifier names the taxpayer a session is opened for
type ContextIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// NIPIdentifier builds the identifier used for NIP-based authorization
func NIPIdentifier(nip string) ContextIdentifier {
	return ContextIdentifier{Type: "onip", Identifier: nip}
}

// PublicKeyResponse is returned by the public key endpoint
type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// ChallengeResponse is returned by the challenge endpoint
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
	Timestamp string `json:"timestamp"`
}

// TokenRequest exchanges an encrypted long-lived token for a session
type TokenRequest struct {
	ContextIdentifier ContextIdentifier `json:"contextIdentifier"`
	EncryptedToken    string            `json:"encryptedToken"`
	Challenge         string            `json:"challenge,omitempty"`
}

// SessionToken is the bearer credential issued by the token exchange
type SessionToken struct {
	Token   string            `json:"token"`
	Context ContextIdentifier `json:"context"`
}

// TokenResponse wraps the issued session token
type TokenResponse struct {
	SessionToken SessionToken `json:"sessionToken"`
}

// Payload types accepted by the submit endpoint
const (
	PayloadPlain     = "plain"
	PayloadEncrypted = "encrypted"
)

// InvoicePayload carries one document, base64-encoded
type InvoicePayload struct {
	Type                                   string `json:"type"`
	InvoiceBody                            string `json:"invoiceBody"`
	EncryptedCredentialsKeyForSessionToken string `json:"encryptedCredentialsKeyForSessionToken,omitempty"`
	IV                                     string `json:"iv,omitempty"`
}

// SendInvoiceRequest is the body of the submit endpoint
type SendInvoiceRequest struct {
	InvoicePayload InvoicePayload `json:"invoicePayload"`
}

// SendInvoiceResponse acknowledges a submission
type SendInvoiceResponse struct {
	ReferenceNumber       string `json:"referenceNumber"`
	ProcessingCode        int    `json:"processingCode"`
	ProcessingDescription string `json:"processingDescription"`
	Timestamp             string `json:"timestamp"`
}

// InvoiceStatusDetail is present once the Service has assigned a KSeF number
type InvoiceStatusDetail struct {
	InvoiceStatus        string `json:"invoiceStatus,omitempty"`
	KSeFReferenceNumber  string `json:"ksefReferenceNumber,omitempty"`
	AcquisitionTimestamp string `json:"acquisitionTimestamp,omitempty"`
}

// InvoiceStatusResponse reports processing progress of a submission
type InvoiceStatusResponse struct {
	ProcessingCode        int                 `json:"processingCode"`
	ProcessingDescription string              `json:"processingDescription"`
	ReferenceNumber       string              `json:"referenceNumber"`
	InvoiceStatus         InvoiceStatusDetail `json:"invoiceStatus"`
}

// DateRange bounds a download query
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// QueryCriteria selects invoices for a batch download
type QueryCriteria struct {
	SubjectType     string     `json:"subjectType"`
	Type            string     `json:"type"`
	InvoicingDate   *DateRange `json:"invoicingDateRange,omitempty"`
	InvoiceNumber   string     `json:"invoiceNumber,omitempty"`
	KSeFReferenceNo string     `json:"ksefReferenceNumber,omitempty"`
}

// DownloadRequest is the body of the batch download endpoint
type DownloadRequest struct {
	QueryCriteria QueryCriteria `json:"queryCriteria"`
}

// DownloadResponse identifies an asynchronous download job
type DownloadResponse struct {
	Timestamp       string `json:"timestamp"`
	ReferenceNumber string `json:"referenceNumber"`
}
