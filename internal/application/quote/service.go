// Package quote owns the quote lifecycle: intake, staff response, the two
// rejection paths, payment acceptance and policy document delivery. Every
// mutation goes through the repository, which publishes it on the change
// feed; at most one notification is emitted to the quote's owner per
// operation, and guest quotes (no user_id) never receive any.
package quote

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/monitoring"
	"github.com/quote-api-nosql/internal/pkg/id"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldStatus                  = "status"
	fieldCustomerStatus          = "customer_status"
	fieldPrice                   = "price"
	fieldMaxInstallments         = "max_installments"
	fieldAdminResponse           = "admin_response"
	fieldAdminNotes              = "admin_notes"
	fieldRejectionReason         = "rejection_reason"
	fieldCustomerRejectionReason = "customer_rejection_reason"
	fieldDocumentURL             = "document_url"
	fieldDocumentName            = "document_name"
	fieldAwaitingProcessing      = "awaiting_processing"
	fieldPaymentInfo             = "payment_info"
)

// QuoteView is a quote with its derived display status attached. The status
// is computed at read time; it never exists in the store.
type QuoteView struct {
	domain.Quote
	DisplayStatus domain.DisplayStatus `json:"display_status"`
}

// DocumentLink is a short-lived download location for a policy document.
type DocumentLink struct {
	URL  string `json:"document_url"`
	Name string `json:"document_name"`
}

// StatusCounts aggregates an admin dashboard's counters.
type StatusCounts struct {
	Pending          int `json:"pending"`
	Responded        int `json:"responded"`
	AwaitingDocument int `json:"awaiting_document"`
	Completed        int `json:"completed"`
	Cancelled        int `json:"cancelled"`
	Unknown          int `json:"unknown"`
	Total            int `json:"total"`
}

type Service interface {
	Submit(ctx context.Context, userID string, req domain.CreateQuoteRequest) (*QuoteView, error)
	Get(ctx context.Context, quoteID string) (*QuoteView, error)
	Respond(ctx context.Context, quoteID string, req domain.RespondQuoteRequest) (*QuoteView, error)
	Reject(ctx context.Context, quoteID string, req domain.RejectQuoteRequest) (*QuoteView, error)
	CustomerReject(ctx context.Context, quoteID, userID string, req domain.RejectQuoteRequest) (*QuoteView, error)
	AcceptAndPay(ctx context.Context, quoteID, userID string, req domain.PaymentRequest) (*QuoteView, error)
	UploadDocument(ctx context.Context, quoteID, filename string, r io.Reader, contentType string) (*QuoteView, error)
	DocumentLink(ctx context.Context, quoteID string) (*DocumentLink, error)
	Delete(ctx context.Context, quoteID string) error
	ListByUser(ctx context.Context, userID string) ([]QuoteView, error)
	ListAll(ctx context.Context, status domain.DisplayStatus) ([]QuoteView, error)
	Counts(ctx context.Context) (*StatusCounts, error)
}

type quoteStore interface {
	Put(ctx context.Context, q *domain.Quote) error
	Get(ctx context.Context, quoteID string) (*domain.Quote, error)
	Update(ctx context.Context, quoteID string, updates map[string]interface{}) (*domain.Quote, error)
	Delete(ctx context.Context, quoteID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Quote, error)
	ListAll(ctx context.Context) ([]domain.Quote, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
}

type documentStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type service struct {
	quotes     quoteStore
	notifs     notificationStore
	documents  documentStore
	sms        smsSender
	staffPhone string
	log        *zap.Logger
}

type ServiceDeps struct {
	QuoteRepo        quoteStore
	NotificationRepo notificationStore
	Documents        documentStore
	SMS              smsSender // nil disables staff SMS alerts
	StaffAlertPhone  string
	Log              *zap.Logger
}

func NewService(deps ServiceDeps) Service {
	return &service{
		quotes:     deps.QuoteRepo,
		notifs:     deps.NotificationRepo,
		documents:  deps.Documents,
		sms:        deps.SMS,
		staffPhone: deps.StaffAlertPhone,
		log:        deps.Log,
	}
}

// Submit creates a pending quote. userID is empty for guest intake.
func (s *service) Submit(ctx context.Context, userID string, req domain.CreateQuoteRequest) (*QuoteView, error) {
	q := &domain.Quote{
		QuoteID:         id.New(),
		UserID:          userID,
		InsuranceType:   domain.InsuranceType(req.InsuranceType),
		FullName:        req.FullName,
		Phone:           req.Phone,
		NationalID:      req.NationalID,
		VehiclePlate:    req.VehiclePlate,
		PropertyAddress: req.PropertyAddress,
		Status:          domain.QuotePending,
	}
	if err := s.quotes.Put(ctx, q); err != nil {
		return nil, err
	}
	monitoring.QuoteMutationsTotal.WithLabelValues("submit").Inc()
	return view(q), nil
}

func (s *service) Get(ctx context.Context, quoteID string) (*QuoteView, error) {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	return view(q), nil
}

// Respond records the staff offer. Allowed only while the quote is still
// pending and active.
func (s *service) Respond(ctx context.Context, quoteID string, req domain.RespondQuoteRequest) (*QuoteView, error) {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if domain.EvaluateStatus(q) != domain.DisplayPending {
		return nil, fmt.Errorf("quote is not pending: %w", domain.ErrBadRequest)
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("price must be a positive decimal: %w", domain.ErrBadRequest)
	}
	updates := map[string]interface{}{
		fieldStatus:        string(domain.QuoteResponded),
		fieldPrice:         price.StringFixed(2),
		fieldAdminResponse: req.AdminResponse,
	}
	if req.MaxInstallments != nil {
		updates[fieldMaxInstallments] = *req.MaxInstallments
	}
	if req.AdminNotes != nil {
		updates[fieldAdminNotes] = *req.AdminNotes
	}
	q, err = s.quotes.Update(ctx, quoteID, updates)
	if err != nil {
		return nil, err
	}
	monitoring.QuoteMutationsTotal.WithLabelValues("respond").Inc()
	s.notify(ctx, q, &domain.Notification{
		Type:    domain.NotificationQuoteResponse,
		Title:   "Your quote is ready",
		Message: fmt.Sprintf("We have prepared an offer for your %s insurance request.", q.InsuranceType),
		Price:   q.Price,
	})
	return view(q), nil
}

// Reject is the staff-side rejection.
func (s *service) Reject(ctx context.Context, quoteID string, req domain.RejectQuoteRequest) (*QuoteView, error) {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if domain.IsCancelled(q) {
		return nil, fmt.Errorf("quote already cancelled: %w", domain.ErrBadRequest)
	}
	q, err = s.quotes.Update(ctx, quoteID, map[string]interface{}{
		fieldStatus:          string(domain.QuoteRejected),
		fieldRejectionReason: req.Reason,
	})
	if err != nil {
		return nil, err
	}
	monitoring.QuoteMutationsTotal.WithLabelValues("reject").Inc()
	s.notify(ctx, q, &domain.Notification{
		Type:    domain.NotificationQuoteRejected,
		Title:   "Quote request declined",
		Message: fmt.Sprintf("Your %s insurance request was declined.", q.InsuranceType),
		Reason:  &req.Reason,
	})
	return view(q), nil
}

// CustomerReject is the customer-side rejection of an offered quote. No
// notification: the actor is the quote's owner.
func (s *service) CustomerReject(ctx context.Context, quoteID, userID string, req domain.RejectQuoteRequest) (*QuoteView, error) {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.UserID == "" || q.UserID != userID {
		return nil, fmt.Errorf("not your quote: %w", domain.ErrForbidden)
	}
	if domain.IsCancelled(q) {
		return nil, fmt.Errorf("quote already cancelled: %w", domain.ErrBadRequest)
	}
	q, err = s.quotes.Update(ctx, quoteID, map[string]interface{}{
		fieldCustomerStatus:          string(domain.CustomerRejected),
		fieldCustomerRejectionReason: req.Reason,
	})
	if err != nil {
		return nil, err
	}
	monitoring.QuoteMutationsTotal.WithLabelValues("customer_reject").Inc()
	return view(q), nil
}

// AcceptAndPay records the customer's card submission. The quote must carry
// a price and derive to Responded. No customer notification is emitted; the
// back office is alerted out-of-band by SMS.
func (s *service) AcceptAndPay(ctx context.Context, quoteID, userID string, req domain.PaymentRequest) (*QuoteView, error) {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.UserID == "" || q.UserID != userID {
		return nil, fmt.Errorf("not your quote: %w", domain.ErrForbidden)
	}
	if domain.EvaluateStatus(q) != domain.DisplayResponded {
		return nil, fmt.Errorf("quote is not awaiting acceptance: %w", domain.ErrBadRequest)
	}
	if q.Price == nil {
		return nil, fmt.Errorf("quote has no price: %w", domain.ErrBadRequest)
	}
	if q.MaxInstallments != nil && req.InstallmentCount > *q.MaxInstallments {
		return nil, fmt.Errorf("installment count exceeds the allowed maximum: %w", domain.ErrBadRequest)
	}
	total, err := decimal.NewFromString(*q.Price)
	if err != nil {
		return nil, fmt.Errorf("stored price is not a decimal: %w", err)
	}
	perInstallment := total
	if req.InstallmentCount > 1 {
		perInstallment = total.DivRound(decimal.NewFromInt(int64(req.InstallmentCount)), 2)
	}
	info := &domain.PaymentInfo{
		CardNumberMasked:  maskCardNumber(req.CardNumber),
		CardNumber:        req.CardNumber,
		CardHolder:        req.CardHolder,
		Expiry:            req.Expiry,
		CVV:               req.CVV,
		InstallmentCount:  req.InstallmentCount,
		InstallmentAmount: perInstallment.StringFixed(2),
		TotalAmount:       total.StringFixed(2),
		SubmittedAt:       time.Now().UTC(),
	}
	q, err = s.quotes.Update(ctx, quoteID, map[string]interface{}{
		fieldCustomerStatus:     string(domain.CustomerCardSubmitted),
		fieldAwaitingProcessing: true,
		fieldPaymentInfo:        info,
	})
	if err != nil {
		return nil, err
	}
	monitoring.QuoteMutationsTotal.WithLabelValues("accept_and_pay").Inc()
	s.alertStaff(ctx, q)
	return view(q), nil
}

// UploadDocument stores the policy document and completes the quote.
func (s *service) UploadDocument(ctx context.Context, quoteID, filename string, r io.Reader, contentType string) (*QuoteView, error) {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if domain.IsCancelled(q) {
		return nil, fmt.Errorf("quote is cancelled: %w", domain.ErrBadRequest)
	}
	key := fmt.Sprintf("policies/%s/%s", quoteID, filename)
	url, err := s.documents.Upload(ctx, key, r, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload policy document: %w", err)
	}
	q, err = s.quotes.Update(ctx, quoteID, map[string]interface{}{
		fieldDocumentURL:        url,
		fieldDocumentName:       filename,
		fieldAwaitingProcessing: false,
	})
	if err != nil {
		return nil, err
	}
	monitoring.QuoteMutationsTotal.WithLabelValues("upload_document").Inc()
	s.notify(ctx, q, &domain.Notification{
		Type:        domain.NotificationDocumentReady,
		Title:       "Your policy is ready",
		Message:     fmt.Sprintf("The policy document for your %s insurance is ready to download.", q.InsuranceType),
		DocumentURL: q.DocumentURL,
	})
	return view(q), nil
}

// documentLinkTTL bounds how long a presigned download stays valid.
const documentLinkTTL = 15 * time.Minute

// DocumentLink returns a presigned download URL for the quote's policy
// document.
func (s *service) DocumentLink(ctx context.Context, quoteID string) (*DocumentLink, error) {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.DocumentName == nil || *q.DocumentName == "" {
		return nil, fmt.Errorf("quote has no document: %w", domain.ErrNotFound)
	}
	key := fmt.Sprintf("policies/%s/%s", quoteID, *q.DocumentName)
	url, err := s.documents.PresignedURL(ctx, key, documentLinkTTL)
	if err != nil {
		return nil, fmt.Errorf("presign policy document: %w", err)
	}
	return &DocumentLink{URL: url, Name: *q.DocumentName}, nil
}

// Delete removes a quote permanently, along with its stored policy document.
// No notification is emitted.
func (s *service) Delete(ctx context.Context, quoteID string) error {
	q, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	if q.DocumentName != nil && *q.DocumentName != "" {
		key := fmt.Sprintf("policies/%s/%s", quoteID, *q.DocumentName)
		if err := s.documents.Delete(ctx, key); err != nil {
			s.log.Warn("delete policy document", zap.String("quote_id", quoteID), zap.Error(err))
		}
	}
	if err := s.quotes.Delete(ctx, quoteID); err != nil {
		return err
	}
	monitoring.QuoteMutationsTotal.WithLabelValues("delete").Inc()
	return nil
}

func (s *service) ListByUser(ctx context.Context, userID string) ([]QuoteView, error) {
	quotes, err := s.quotes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return views(quotes, ""), nil
}

// ListAll returns every quote, optionally filtered by derived status.
func (s *service) ListAll(ctx context.Context, status domain.DisplayStatus) ([]QuoteView, error) {
	quotes, err := s.quotes.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return views(quotes, status), nil
}

func (s *service) Counts(ctx context.Context) (*StatusCounts, error) {
	quotes, err := s.quotes.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var c StatusCounts
	for i := range quotes {
		switch domain.EvaluateStatus(&quotes[i]) {
		case domain.DisplayPending:
			c.Pending++
		case domain.DisplayResponded:
			c.Responded++
		case domain.DisplayAwaitingDocument:
			c.AwaitingDocument++
		case domain.DisplayCompleted:
			c.Completed++
		case domain.DisplayCancelled:
			c.Cancelled++
		default:
			c.Unknown++
		}
		c.Total++
	}
	return &c, nil
}

// notify writes one notification addressed to the quote's owner. Guest
// quotes have no owner, so nothing is written. A store failure is logged
// and swallowed: the quote mutation already succeeded.
func (s *service) notify(ctx context.Context, q *domain.Quote, n *domain.Notification) {
	if q.UserID == "" {
		return
	}
	n.NotificationID = id.New()
	n.UserID = q.UserID
	n.QuoteID = &q.QuoteID
	n.InsuranceType = &q.InsuranceType
	n.Triggered = true
	if err := s.notifs.Put(ctx, n); err != nil {
		s.log.Error("write notification",
			zap.String("quote_id", q.QuoteID),
			zap.String("user_id", q.UserID),
			zap.Error(err))
		return
	}
	monitoring.NotificationsCreatedTotal.WithLabelValues(string(n.Type)).Inc()
}

func (s *service) alertStaff(ctx context.Context, q *domain.Quote) {
	if s.sms == nil || s.staffPhone == "" {
		return
	}
	msg := fmt.Sprintf("Payment submitted for quote %s (%s, %s). Awaiting policy issue.",
		q.QuoteID, q.InsuranceType, q.PaymentInfo.TotalAmount)
	if err := s.sms.SendSMS(ctx, s.staffPhone, msg); err != nil {
		s.log.Warn("staff SMS alert failed", zap.String("quote_id", q.QuoteID), zap.Error(err))
	}
}

// maskCardNumber keeps the last four digits: "**** **** **** 1234".
func maskCardNumber(number string) string {
	digits := strings.ReplaceAll(strings.ReplaceAll(number, " ", ""), "-", "")
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

func view(q *domain.Quote) *QuoteView {
	return &QuoteView{Quote: *q, DisplayStatus: domain.EvaluateStatus(q)}
}

func views(quotes []domain.Quote, filter domain.DisplayStatus) []QuoteView {
	out := make([]QuoteView, 0, len(quotes))
	for i := range quotes {
		v := view(&quotes[i])
		if filter != "" && v.DisplayStatus != filter {
			continue
		}
		out = append(out, *v)
	}
	return out
}
