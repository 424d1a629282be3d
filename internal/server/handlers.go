package server

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rezonia/ksef-connector/internal/credentials"
	"github.com/rezonia/ksef-connector/internal/encryption"
	"github.com/rezonia/ksef-connector/internal/ksef"
	"github.com/rezonia/ksef-connector/internal/model"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePublicKey(c *gin.Context) {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to encode public key"})
		return
	}
	c.JSON(http.StatusOK, ksef.PublicKeyResponse{
		PublicKey: base64.StdEncoding.EncodeToString(der),
	})
}

func (s *Server) handleChallenge(c *gin.Context) {
	nip := c.Param("nip")
	if err := credentials.ValidateNIP(nip); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	now := s.now().UTC()
	value := now.Format("20060102-150405") + "-CR-" + strings.ToUpper(hex.EncodeToString(randomBytes(5)))

	s.mu.Lock()
	s.challenges[nip] = issuedChallenge{value: value, expires: now.Add(s.config.ChallengeTTL)}
	s.mu.Unlock()

	c.JSON(http.StatusOK, ksef.ChallengeResponse{
		Challenge: value,
		Timestamp: now.Format(timestampLayout),
	})
}

func (s *Server) handleGenerateToken(c *gin.Context) {
	var req ksef.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	nip := req.ContextIdentifier.Identifier
	if req.ContextIdentifier.Type != "onip" || credentials.ValidateNIP(nip) != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported context identifier"})
		return
	}

	if status, msg := s.consumeChallenge(nip, req.Challenge); status != http.StatusOK {
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}

	wrapped, err := base64.StdEncoding.DecodeString(req.EncryptedToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "encryptedToken is not base64"})
		return
	}
	token, err := encryption.UnwrapSecret(wrapped, s.key)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "token decryption failed"})
		return
	}
	if want, ok := s.config.Tokens[nip]; len(s.config.Tokens) > 0 && (!ok || want != string(token)) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unknown authorization token"})
		return
	}

	session, err := s.signer.issue(nip, req.ContextIdentifier.Type, s.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ksef.TokenResponse{
		SessionToken: ksef.SessionToken{
			Token:   session,
			Context: req.ContextIdentifier,
		},
	})
}

// consumeChallenge enforces that a fresh challenge was issued for nip and
// matches the echoed value when one is sent. Challenges are single use.
func (s *Server) consumeChallenge(nip, echoed string) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[nip]
	if !ok {
		return http.StatusBadRequest, "no challenge issued for this identifier"
	}
	delete(s.challenges, nip)

	if s.now().After(ch.expires) {
		return http.StatusBadRequest, "challenge expired"
	}
	if echoed != "" && echoed != ch.value {
		return http.StatusBadRequest, "challenge mismatch"
	}
	return http.StatusOK, ""
}

func (s *Server) handleSendInvoice(c *gin.Context) {
	var req ksef.SendInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	doc, err := s.decodePayload(req.InvoicePayload)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	nip := c.GetString(nipContextKey)
	now := s.now().UTC()
	sub := &submission{nip: nip, acquiredAt: now}
	if err := checkDocument(doc, nip); err != nil {
		sub.code = CodeInvalid
		sub.desc = err.Error()
	} else {
		sub.code = CodeAccepted
		sub.desc = "Dokument przetworzony"
		sub.ksefNumber = fmt.Sprintf("%s-%s-%s-%s", nip, now.Format("20060102"),
			strings.ToUpper(hex.EncodeToString(randomBytes(6))), strings.ToUpper(hex.EncodeToString(randomBytes(1))))
	}

	ref := now.Format("20060102") + "-SE-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:20])

	s.mu.Lock()
	s.submissions[ref] = sub
	s.mu.Unlock()

	c.JSON(http.StatusAccepted, ksef.SendInvoiceResponse{
		ReferenceNumber:       ref,
		ProcessingCode:        CodeReceived,
		ProcessingDescription: "Przyjęto dokument do weryfikacji",
		Timestamp:             now.Format(timestampLayout),
	})
}

func (s *Server) decodePayload(p ksef.InvoicePayload) ([]byte, error) {
	switch p.Type {
	case ksef.PayloadPlain:
		doc, err := base64.StdEncoding.DecodeString(p.InvoiceBody)
		if err != nil {
			return nil, fmt.Errorf("invoiceBody is not base64")
		}
		return doc, nil
	case ksef.PayloadEncrypted:
		doc, err := encryption.DecryptDocument(model.EncryptedEnvelope{
			CipherText: p.InvoiceBody,
			WrappedKey: p.EncryptedCredentialsKeyForSessionToken,
			IV:         p.IV,
		}, s.key)
		if err != nil {
			return nil, fmt.Errorf("payload decryption failed")
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %q", p.Type)
	}
}

// checkDocument applies the sandbox's acceptance rules
func checkDocument(doc []byte, sessionNIP string) error {
	d := etree.NewDocument()
	if err := d.ReadFromBytes(doc); err != nil {
		return fmt.Errorf("document is not well-formed XML")
	}
	root := d.Root()
	if root == nil || root.Tag != "Faktura" {
		return fmt.Errorf("root element must be Faktura")
	}
	seller := root.FindElement("./Podmiot1/DaneIdentyfikacyjne/NIP")
	if seller == nil || seller.Text() != sessionNIP {
		return fmt.Errorf("seller NIP does not match session context")
	}
	if root.FindElement("./Fa/P_2") == nil {
		return fmt.Errorf("invoice number is missing")
	}
	return nil
}

func (s *Server) handleInvoiceStatus(c *gin.Context) {
	ref := c.Param("ref")
	nip := c.GetString(nipContextKey)

	s.mu.Lock()
	sub, ok := s.submissions[ref]
	if !ok || sub.nip != nip {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown reference number"})
		return
	}
	pending := sub.polls < s.config.PendingPolls
	sub.polls++
	snapshot := *sub
	s.mu.Unlock()

	resp := ksef.InvoiceStatusResponse{
		ReferenceNumber: ref,
	}
	switch {
	case pending:
		resp.ProcessingCode = CodeProcessing
		resp.ProcessingDescription = "Trwa przetwarzanie"
	default:
		resp.ProcessingCode = snapshot.code
		resp.ProcessingDescription = snapshot.desc
		if snapshot.code == CodeAccepted {
			resp.InvoiceStatus = ksef.InvoiceStatusDetail{
				InvoiceStatus:        "accepted",
				KSeFReferenceNumber:  snapshot.ksefNumber,
				AcquisitionTimestamp: snapshot.acquiredAt.Format(timestampLayout),
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDownloadRequest(c *gin.Context) {
	var req ksef.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.QueryCriteria.SubjectType == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "queryCriteria.subjectType is required"})
		return
	}

	now := s.now().UTC()
	c.JSON(http.StatusOK, ksef.DownloadResponse{
		Timestamp:       now.Format(timestampLayout),
		ReferenceNumber: now.Format("20060102") + "-EX-" + strings.ToUpper(hex.EncodeToString(randomBytes(8))),
	})
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
